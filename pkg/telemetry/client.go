// Package telemetry is the host-facing client: it records sessions and
// events and uploads them, reporting every result as an Outcome and never
// returning errors or panicking.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/blob"
	"github.com/harun/tally/pkg/meta"
	"github.com/harun/tally/pkg/platform"
	"github.com/harun/tally/pkg/session"
	"github.com/harun/tally/pkg/storage"
	"github.com/harun/tally/pkg/upload"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDirName is the storage directory name under the user's
	// application data directory.
	DefaultDirName = "localytics"

	// PreferencesFile holds the device id inside the storage directory.
	PreferencesFile = "prefs.yaml"
)

// Options configures a Client.
type Options struct {
	AppKey     string
	AppVersion string

	// DataDir overrides the platform application data directory.
	DataDir string

	// URL is the full collector URL for AppKey.
	URL string

	UploadTimeout     time.Duration
	MaxStoredSessions int
	CoalesceUploads   bool

	// Transport overrides the HTTP transport.
	Transport upload.Transport

	// Preferences overrides the YAML preference file.
	Preferences platform.Preferences
}

// Client owns the session writer and uploader of one storage directory.
type Client struct {
	opts     Options
	files    *storage.Store
	meta     *meta.Store
	writer   *session.Writer
	uploader *upload.Uploader
}

// New resolves the storage directory and wires the pipeline. Failing to
// resolve the directory is the only error.
func New(opts Options) (*Client, error) {
	resolve := storage.StaticDir(opts.DataDir)
	if opts.DataDir == "" {
		resolve = func() (string, error) { return platform.DataDir(DefaultDirName) }
	}
	files := storage.New(resolve)
	dir, err := files.Dir()
	if err != nil {
		return nil, err
	}

	prefs := opts.Preferences
	if prefs == nil {
		prefs = platform.NewFilePreferences(filepath.Join(dir, PreferencesFile))
	}
	transport := opts.Transport
	if transport == nil {
		transport = upload.NewHTTPTransport(nil)
	}

	metaStore := meta.New(files)
	writer := session.NewWriter(files, session.WithMaxStored(opts.MaxStoredSessions))
	builder := blob.NewBuilder(metaStore, prefs, &platform.Info{AppVersion: opts.AppVersion})
	stager := upload.NewStager(files, builder, writer.Locker())
	uploader := upload.NewUploader(files, stager, transport, upload.Options{
		URL:      opts.URL,
		AppKey:   opts.AppKey,
		Timeout:  opts.UploadTimeout,
		Coalesce: opts.CoalesceUploads,
	})

	log.Debug().Str("dir", dir).Msg("Telemetry client initialized")
	return &Client{
		opts:     opts,
		files:    files,
		meta:     metaStore,
		writer:   writer,
		uploader: uploader,
	}, nil
}

// Open starts a session.
func (c *Client) Open(ctx context.Context) (out Outcome) {
	defer recoverTo("open", &out)

	_, err := c.writer.Open(ctx, c.opts.AppKey)
	switch {
	case err == nil:
		return ok()
	case errors.Is(err, session.ErrAlreadyOpen),
		errors.Is(err, session.ErrMissingAppKey),
		errors.Is(err, session.ErrTooManySessions):
		log.Warn().Err(err).Msg("Session not opened")
		return skipped(err.Error(), err)
	default:
		log.Error().Err(err).Msg("Failed to open session")
		return failed(err)
	}
}

// TagEvent records an event in the open session.
func (c *Client) TagEvent(ctx context.Context, name string, attrs map[string]string) (out Outcome) {
	defer recoverTo("tag_event", &out)

	err := c.writer.TagEvent(ctx, name, attrs)
	switch {
	case err == nil:
		return ok()
	case errors.Is(err, session.ErrNotOpen):
		log.Warn().Str("event", name).Msg("Event dropped, no open session")
		return skipped(err.Error(), err)
	default:
		log.Error().Err(err).Str("event", name).Msg("Failed to tag event")
		return failed(err)
	}
}

// Close ends the open session.
func (c *Client) Close(ctx context.Context) (out Outcome) {
	defer recoverTo("close", &out)

	err := c.writer.Close(ctx)
	switch {
	case err == nil:
		return ok()
	case errors.Is(err, session.ErrNotOpen):
		log.Warn().Msg("Close ignored, no open session")
		return skipped(err.Error(), err)
	default:
		log.Error().Err(err).Msg("Failed to close session")
		return failed(err)
	}
}

// Upload starts a background upload and returns at once.
func (c *Client) Upload(ctx context.Context) (out Outcome) {
	defer recoverTo("upload", &out)

	if c.opts.AppKey == "" {
		return skipped(session.ErrMissingAppKey.Error(), session.ErrMissingAppKey)
	}
	err := c.uploader.Upload(ctx)
	switch {
	case err == nil:
		return Outcome{Status: StatusStarted}
	case errors.Is(err, upload.ErrInProgress), errors.Is(err, upload.ErrClosed):
		log.Debug().Err(err).Msg("Upload not started")
		return skipped(err.Error(), err)
	default:
		log.Error().Err(err).Msg("Failed to start upload")
		return failed(err)
	}
}

// Flush uploads on the caller's goroutine and reports the result.
func (c *Client) Flush(ctx context.Context) (out Outcome) {
	defer recoverTo("flush", &out)

	if c.opts.AppKey == "" {
		return skipped(session.ErrMissingAppKey.Error(), session.ErrMissingAppKey)
	}
	res, err := c.uploader.Flush(ctx)
	switch {
	case err == nil && !res.Sent:
		return Outcome{Status: StatusOK, Reason: "nothing to upload"}
	case err == nil:
		return Outcome{Status: StatusOK, Reason: fmt.Sprintf("uploaded %d file(s), %d bytes", res.Files, res.Bytes)}
	case errors.Is(err, upload.ErrInProgress), errors.Is(err, upload.ErrClosed):
		return skipped(err.Error(), err)
	default:
		return failed(err)
	}
}

// Wait blocks until a background upload has finished.
func (c *Client) Wait() {
	c.uploader.Wait()
}

// Shutdown cancels background uploads and waits for them or for ctx. The
// open session, if any, stays on disk and is uploaded by a later run.
func (c *Client) Shutdown(ctx context.Context) (out Outcome) {
	defer recoverTo("shutdown", &out)

	done := make(chan struct{})
	go func() {
		c.uploader.Close()
		close(done)
	}()

	select {
	case <-done:
		return ok()
	case <-ctx.Done():
		logger := tracing.LoggerFromContext(ctx, log.Logger)
		logger.Warn().Msg("Shutdown timed out waiting for upload")
		return failed(ctx.Err())
	}
}

// Scheduler returns a scheduler triggering this client's uploads on the given cron schedule.
func (c *Client) Scheduler(spec string) *upload.Scheduler {
	return upload.NewScheduler(c.uploader, spec)
}
