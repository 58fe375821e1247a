package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/recipegrabba/internal/config"
)

const (
	// MaxBodySize caps a single direct download.
	MaxBodySize = 64 << 20 // 64MB
	// DefaultTimeout applies when no download timeout is configured.
	DefaultTimeout = 120 * time.Second
)

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("rate limited by remote host")
	// ErrTooLarge is returned when the body exceeds MaxBodySize.
	ErrTooLarge = errors.New("response body too large")
)

// StatusError is returned for non-2xx responses other than 429.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Result is a fully buffered download.
type Result struct {
	Data        []byte
	ContentType string
}

// Downloader fetches remote content into memory.
type Downloader interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// HTTPDownloader implements Downloader using HTTP requests.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	retry     RetryConfig
	logger    *slog.Logger
}

// NewHTTPDownloader creates a new HTTP downloader. The whole request,
// body included, is bounded by cfg.Timeout.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    logger.With("component", "downloader"),
	}
	d.retry = RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			d.logger.Warn("download failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
	}
	return d
}

// Fetch downloads url with retry on rate limiting, server errors and
// network failures.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string) (*Result, error) {
	result, err := RetryWithCheck(ctx, d.retry, func() (*Result, error) {
		return d.fetchOnce(ctx, url)
	}, isRetryableError)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	d.logger.Debug("download complete",
		"url", url,
		"size", humanize.Bytes(uint64(len(result.Data))),
		"content_type", result.ContentType,
	)
	return result, nil
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Set headers to mimic browser request
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if resp.ContentLength > MaxBodySize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, humanize.Bytes(uint64(resp.ContentLength)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxBodySize {
		return nil, ErrTooLarge
	}

	return &Result{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	// Network errors are retryable
	return true
}
