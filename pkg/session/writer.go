package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/tally/internal/observability"
	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/record"
	"github.com/harun/tally/pkg/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// FilePrefix marks session files in the storage directory.
	FilePrefix = "s_"

	// DefaultMaxStored is the number of stored session files at which Open
	// starts rejecting new sessions.
	DefaultMaxStored = 10
)

var (
	ErrAlreadyOpen     = errors.New("session already open")
	ErrNotOpen         = errors.New("no open session")
	ErrTooManySessions = errors.New("too many stored sessions")
	ErrMissingAppKey   = errors.New("application key is not configured")
)

// Session is the currently open session.
type Session struct {
	ID        string
	StartTime int64
	FileName  string
}

// Option configures a Writer.
type Option func(*Writer)

// WithMaxStored sets the stored-session ceiling. Values below 1 are ignored.
func WithMaxStored(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxStored = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithIDGenerator replaces the generator for session and record ids.
func WithIDGenerator(newID func() string) Option {
	return func(w *Writer) { w.newID = newID }
}

// Writer owns the current session and appends its records.
type Writer struct {
	files     *storage.Store
	maxStored int
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	current *Session
}

// NewWriter creates a Writer over files.
func NewWriter(files *storage.Store, opts ...Option) *Writer {
	observability.EnsureRegistered()

	w := &Writer{
		files:     files,
		maxStored: DefaultMaxStored,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Locker returns the lock serialising session mutations.
func (w *Writer) Locker() sync.Locker {
	return &w.mu
}

// Current returns the open session, if any.
func (w *Writer) Current() (Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return Session{}, false
	}
	return *w.current, true
}

// Open starts a new session and writes its open record.
func (w *Writer) Open(ctx context.Context, appKey string) (Session, error) {
	ctx, span := tracing.StartSpan(ctx, "tally.session", "session.open")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		logger.Debug().Str("session_id", w.current.ID).Msg("Session already open")
		observability.RecordOpenRejected("already_open")
		return *w.current, ErrAlreadyOpen
	}
	if appKey == "" {
		observability.RecordOpenRejected("missing_app_key")
		tracing.Fail(span, ErrMissingAppKey)
		return Session{}, ErrMissingAppKey
	}

	stored, err := w.files.Count(FilePrefix)
	if err != nil {
		tracing.Fail(span, err)
		return Session{}, fmt.Errorf("failed to count stored sessions: %w", err)
	}
	observability.SetStoredSessions(stored)
	if stored >= w.maxStored {
		logger.Warn().Int("stored", stored).Int("max", w.maxStored).Msg("Too many stored sessions, not opening")
		observability.RecordOpenRejected("too_many_sessions")
		return Session{}, fmt.Errorf("%w: %d stored", ErrTooManySessions, stored)
	}

	id := w.newID()
	sess := Session{
		ID:        id,
		StartTime: w.now().Unix(),
		FileName:  FilePrefix + id,
	}
	span.SetAttributes(attribute.String("session_id", id))

	if err := w.append(sess.FileName, record.TypeOpen, record.NewOpen(id, sess.StartTime)); err != nil {
		tracing.Fail(span, err)
		return Session{}, err
	}

	w.current = &sess
	observability.SetStoredSessions(stored + 1)
	logger = tracing.LoggerFromContext(tracing.WithSessionID(ctx, id), log.Logger)
	logger.Info().Str("file", sess.FileName).Msg("Session opened")
	return sess, nil
}

// TagEvent appends an event record to the open session.
func (w *Writer) TagEvent(ctx context.Context, name string, attrs map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "tally.session", "session.tag_event",
		attribute.Int("attrs", len(attrs)))
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return ErrNotOpen
	}
	ctx = tracing.WithSessionID(ctx, w.current.ID)

	ev := record.NewEvent(w.newID(), w.current.ID, name, attrs, w.now().Unix())
	if err := w.append(w.current.FileName, record.TypeEvent, ev); err != nil {
		tracing.Fail(span, err)
		return err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().Str("event", ev.Name).Msg("Event tagged")
	return nil
}

// Close writes the close record and ends the session.
func (w *Writer) Close(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "tally.session", "session.close")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return ErrNotOpen
	}
	sess := *w.current
	ctx = tracing.WithSessionID(ctx, sess.ID)

	rec := record.NewClose(w.newID(), sess.ID, sess.StartTime, w.now().Unix())
	if err := w.append(sess.FileName, record.TypeClose, rec); err != nil {
		tracing.Fail(span, err)
		return err
	}

	w.current = nil
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Int64("duration_s", rec.ClientTime-sess.StartTime).
		Msg("Session closed")
	return nil
}

func (w *Writer) append(fileName, recordType string, v any) error {
	line, err := record.Encode(v)
	if err == nil {
		err = w.files.AppendText(fileName, line)
	}
	observability.RecordWritten(recordType, err)
	if err != nil {
		return fmt.Errorf("failed to write %s record: %w", recordType, err)
	}
	return nil
}
