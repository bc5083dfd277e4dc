// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/buildagent/lib/clock"
)

// ErrNotModified is returned by Perform when the server answered 304:
// the copy the agent already has is current.
var ErrNotModified = errors.New("artifact not modified")

// Defaults for HTTPDownloader.
const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// HTTPDownloader fetches artifacts over HTTP. Connection failures and
// 5xx responses are retried with linear backoff; other failures,
// including errors from the body handler, are returned at once.
type HTTPDownloader struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// HTTPDownloaderConfig configures an HTTPDownloader. Zero values
// select defaults.
type HTTPDownloaderConfig struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewHTTPDownloader returns a downloader.
func NewHTTPDownloader(config HTTPDownloaderConfig) *HTTPDownloader {
	downloader := &HTTPDownloader{
		client:   config.Client,
		attempts: config.Attempts,
		backoff:  config.Backoff,
		clock:    config.Clock,
		logger:   config.Logger,
	}
	if downloader.client == nil {
		downloader.client = http.DefaultClient
	}
	if downloader.attempts <= 0 {
		downloader.attempts = defaultAttempts
	}
	if downloader.backoff <= 0 {
		downloader.backoff = defaultBackoff
	}
	if downloader.clock == nil {
		downloader.clock = clock.Real()
	}
	if downloader.logger == nil {
		downloader.logger = slog.New(slog.DiscardHandler)
	}
	return downloader
}

// retryableError marks a failure worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Perform GETs url and passes the response body to handle.
func (d *HTTPDownloader) Perform(ctx context.Context, url string, handle func(body io.Reader) error) error {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err := d.attempt(ctx, url, handle)
		var retryable retryableError
		if err == nil || !errors.As(err, &retryable) {
			return err
		}
		lastErr = retryable.err

		if attempt == d.attempts {
			break
		}
		wait := time.Duration(attempt) * d.backoff
		d.logger.Warn("download failed, retrying", "url", url, "attempt", attempt, "wait", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(wait):
		}
	}
	return fmt.Errorf("fetching %s after %d attempts: %w", url, d.attempts, lastErr)
}

func (d *HTTPDownloader) attempt(ctx context.Context, url string, handle func(body io.Reader) error) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	response, err := d.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retryableError{err}
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotModified:
		return ErrNotModified
	case response.StatusCode >= 500:
		return retryableError{fmt.Errorf("server returned %s", response.Status)}
	case response.StatusCode < 200 || response.StatusCode > 299:
		return fmt.Errorf("server returned %s", response.Status)
	}

	return handle(response.Body)
}
