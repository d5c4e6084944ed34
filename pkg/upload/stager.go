package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/tally/internal/observability"
	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/record"
	"github.com/harun/tally/pkg/session"
	"github.com/harun/tally/pkg/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// StagingPrefix marks committed staging files.
	StagingPrefix = "u_"

	// TempPrefix marks staging files still being written.
	TempPrefix = "t_"
)

// HeaderBuilder produces the first record of a staging file.
type HeaderBuilder interface {
	Build(appKey string) (record.Header, error)
}

// Stager folds session files into one staging file per run.
type Stager struct {
	files  *storage.Store
	header HeaderBuilder
	lock   sync.Locker
	newID  func() string
}

// NewStager creates a Stager. lock is held for the whole run and should be
// the lock of the session writer appending to the same directory.
func NewStager(files *storage.Store, header HeaderBuilder, lock sync.Locker) *Stager {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &Stager{files: files, header: header, lock: lock, newID: uuid.NewString}
}

// Stage moves every session file into a new staging file and returns its
// name and the number of sessions it holds. With no session files nothing
// is written and no header is built.
func (s *Stager) Stage(ctx context.Context, appKey string) (string, int, error) {
	ctx, span := tracing.StartSpan(ctx, "tally.upload", "upload.stage")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	s.lock.Lock()
	defer s.lock.Unlock()

	s.removeStale(ctx)

	sources, err := s.files.Names(session.FilePrefix)
	if err != nil {
		tracing.Fail(span, err)
		return "", 0, fmt.Errorf("failed to list session files: %w", err)
	}
	if len(sources) == 0 {
		logger.Debug().Msg("No session files to stage")
		return "", 0, nil
	}

	header, err := s.header.Build(appKey)
	if err != nil {
		tracing.Fail(span, err)
		return "", 0, fmt.Errorf("failed to build blob header: %w", err)
	}
	headerLine, err := record.Encode(header)
	if err != nil {
		tracing.Fail(span, err)
		return "", 0, err
	}

	var blob strings.Builder
	blob.WriteString(headerLine)
	for _, name := range sources {
		content, err := s.files.ReadAllText(name)
		if err != nil {
			tracing.Fail(span, err)
			return "", 0, fmt.Errorf("failed to read session file: %w", err)
		}
		blob.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			blob.WriteByte('\n')
		}
	}

	id := s.newID()
	tmp, name := TempPrefix+id, StagingPrefix+id
	if err := s.files.WriteText(tmp, blob.String()); err != nil {
		s.files.Remove(tmp)
		tracing.Fail(span, err)
		return "", 0, fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := s.files.Rename(tmp, name); err != nil {
		s.files.Remove(tmp)
		tracing.Fail(span, err)
		return "", 0, fmt.Errorf("failed to commit staging file: %w", err)
	}

	// The staged copy is durable; a failed delete only costs a duplicate.
	for _, source := range sources {
		if err := s.files.Remove(source); err != nil {
			logger.Warn().Err(err).Str("file", source).Msg("Failed to delete staged session file")
		}
	}

	span.SetAttributes(
		attribute.String("staging_file", name),
		attribute.Int("sessions", len(sources)),
		attribute.Int64("seq", header.Sequence),
	)
	observability.RecordStage(time.Since(start), len(sources))
	s.updateGauges()

	logger.Info().
		Str("file", name).
		Int("sessions", len(sources)).
		Int64("seq", header.Sequence).
		Msg("Sessions staged")
	return name, len(sources), nil
}

// removeStale deletes temporary files left by an interrupted run. Their
// sources were never deleted, so they are staged again.
func (s *Stager) removeStale(ctx context.Context) {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	stale, err := s.files.Names(TempPrefix)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list temporary staging files")
		return
	}
	for _, name := range stale {
		if err := s.files.Remove(name); err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Failed to delete temporary staging file")
			continue
		}
		logger.Info().Str("file", name).Msg("Removed interrupted staging file")
	}
}

func (s *Stager) updateGauges() {
	if n, err := s.files.Count(session.FilePrefix); err == nil {
		observability.SetStoredSessions(n)
	}
	if n, err := s.files.Count(StagingPrefix); err == nil {
		observability.SetStagedFiles(n)
	}
}
