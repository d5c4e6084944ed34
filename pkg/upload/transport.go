package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/harun/tally/internal/tracing"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ContentType is the media type of an upload body.
const ContentType = "application/x-gzip"

// maxLoggedResponse bounds how much of a response body is logged.
const maxLoggedResponse = 4 << 10

// Transport delivers one compressed payload to url.
type Transport interface {
	Send(ctx context.Context, url string, body []byte) error
}

// StatusError reports a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded %s", e.Status)
}

// HTTPTransport posts payloads over HTTP.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport using client. A nil client gets an
// instrumented default client; deadlines come from the request context.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPTransport{client: client}
}

// Send posts body to url. Any 2xx response is success.
func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponse))
	io.Copy(io.Discard, resp.Body)
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("body", string(reply)).
		Msg("Collector response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// compress gzips payload.
func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}
