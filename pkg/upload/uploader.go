package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/tally/internal/observability"
	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds one upload run, staging included.
const DefaultTimeout = 60 * time.Second

var (
	// ErrInProgress is returned when another upload holds the guard.
	ErrInProgress = errors.New("upload already in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("uploader closed")
)

// Options configures an Uploader.
type Options struct {
	// URL is the collector endpoint for the application key.
	URL string

	// AppKey is written into blob headers.
	AppKey string

	// Timeout bounds each run; zero means DefaultTimeout.
	Timeout time.Duration

	// Coalesce makes a trigger that arrives during a run schedule one more
	// run afterwards instead of being dropped.
	Coalesce bool
}

// Result describes one completed run.
type Result struct {
	Staged int  // sessions moved into a new staging file
	Files  int  // staging files sent
	Bytes  int  // compressed payload size
	Sent   bool // whether the collector was contacted
}

// Uploader runs the stage, send and delete pipeline, one run at a time.
type Uploader struct {
	files     *storage.Store
	stager    *Stager
	transport Transport
	opts      Options

	guard    *semaphore.Weighted
	pending  atomic.Bool
	inFlight atomic.Bool

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewUploader creates an Uploader.
func NewUploader(files *storage.Store, stager *Stager, transport Transport, opts Options) *Uploader {
	observability.EnsureRegistered()

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		files:     files,
		stager:    stager,
		transport: transport,
		opts:      opts,
		guard:     semaphore.NewWeighted(1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Upload starts a run in the background and returns immediately. It
// returns ErrInProgress without doing anything when a run is active.
func (u *Uploader) Upload(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	if !u.tryAcquire() {
		u.mu.Unlock()
		if u.opts.Coalesce {
			u.pending.Store(true)
		}
		observability.RecordUploadSkipped()
		return ErrInProgress
	}
	u.wg.Add(1)
	u.mu.Unlock()

	go func() {
		defer u.wg.Done()
		runCtx := context.WithoutCancel(ctx)
		for {
			u.runGuarded(runCtx)
			if u.rerun() {
				continue
			}
			u.release()

			// A trigger may have landed between rerun and release.
			if !u.rerun() || !u.tryAcquire() {
				return
			}
		}
	}()
	return nil
}

// Flush runs the pipeline on the caller's goroutine. It honours the same
// guard as Upload.
func (u *Uploader) Flush(ctx context.Context) (Result, error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return Result{}, ErrClosed
	}
	if !u.tryAcquire() {
		u.mu.Unlock()
		observability.RecordUploadSkipped()
		return Result{}, ErrInProgress
	}
	u.mu.Unlock()

	defer u.release()
	return u.runGuarded(ctx)
}

// Wait blocks until background runs have finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

// Close cancels in-flight runs and waits for them. Later calls to Upload
// and Flush return ErrClosed.
func (u *Uploader) Close() error {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()

	u.cancel()
	u.wg.Wait()
	return nil
}

// InProgress reports whether a run holds the guard, from the moment Upload
// or Flush accepts it until its last coalesced rerun has finished.
func (u *Uploader) InProgress() bool {
	return u.inFlight.Load()
}

func (u *Uploader) tryAcquire() bool {
	if !u.guard.TryAcquire(1) {
		return false
	}
	u.inFlight.Store(true)
	observability.SetUploadInFlight(true)
	return true
}

func (u *Uploader) release() {
	u.inFlight.Store(false)
	observability.SetUploadInFlight(false)
	u.guard.Release(1)
}

// rerun consumes a pending coalesced trigger.
func (u *Uploader) rerun() bool {
	return u.opts.Coalesce && u.ctx.Err() == nil && u.pending.Swap(false)
}

// runGuarded must be called with the guard held.
func (u *Uploader) runGuarded(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(u.ctx, cancel)
	defer stop()

	ctx = tracing.WithUploadID(ctx, tracing.NewUploadID())
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	res, err := u.run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Upload failed, staging files kept for retry")
		return res, err
	}
	if res.Sent {
		logger.Info().Int("files", res.Files).Int("bytes", res.Bytes).Msg("Upload complete")
	}
	return res, nil
}

func (u *Uploader) run(ctx context.Context) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "tally.upload", "upload.run")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	var res Result
	_, staged, err := u.stager.Stage(ctx, u.opts.AppKey)
	if err != nil {
		tracing.Fail(span, err)
		observability.RecordUpload("error", time.Since(start), 0)
		return res, err
	}
	res.Staged = staged

	names, payload, err := u.collect()
	if err != nil {
		tracing.Fail(span, err)
		observability.RecordUpload("error", time.Since(start), 0)
		return res, err
	}
	if len(names) == 0 {
		logger.Debug().Msg("Nothing to upload")
		return res, nil
	}
	res.Files = len(names)

	body, err := compress(payload)
	if err != nil {
		tracing.Fail(span, err)
		observability.RecordUpload("error", time.Since(start), 0)
		return res, err
	}
	res.Bytes = len(body)
	span.SetAttributes(attribute.Int("files", res.Files), attribute.Int("bytes", res.Bytes))

	res.Sent = true
	if err := u.transport.Send(ctx, u.opts.URL, body); err != nil {
		tracing.Fail(span, err)
		observability.RecordUpload(failureStatus(err), time.Since(start), len(body))
		return res, fmt.Errorf("failed to send %d staging file(s): %w", len(names), err)
	}
	observability.RecordUpload("success", time.Since(start), len(body))

	for _, name := range names {
		if err := u.files.Remove(name); err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Failed to delete uploaded staging file")
		}
	}
	if n, err := u.files.Count(StagingPrefix); err == nil {
		observability.SetStagedFiles(n)
	}
	return res, nil
}

// collect reads every staging file, leftovers from failed runs included.
func (u *Uploader) collect() ([]string, []byte, error) {
	names, err := u.files.Names(StagingPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list staging files: %w", err)
	}

	var payload strings.Builder
	for _, name := range names {
		content, err := u.files.ReadAllText(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read staging file: %w", err)
		}
		payload.WriteString(content)
	}
	return names, []byte(payload.String()), nil
}

func failureStatus(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
