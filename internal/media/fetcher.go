package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/downloader"
	"github.com/iconidentify/recipegrabba/internal/metrics"
)

// Strategy is one named format selector tried by the fetcher.
type Strategy struct {
	Name     string
	Selector string
}

// DefaultStrategies go from the most specific audio selection to anything
// playable. Order matters: the first non-empty download wins.
var DefaultStrategies = []Strategy{
	{Name: "audio-only", Selector: "bestaudio[ext=m4a][acodec!=none]/bestaudio[acodec!=none]"},
	{Name: "audio-capable", Selector: "best[acodec!=none]/bestvideo*+bestaudio/bestaudio"},
	{Name: "any", Selector: "best/bestvideo"},
}

// MediaSource downloads post media with a format selector.
type MediaSource interface {
	Download(ctx context.Context, url, selector string) ([]byte, string, error)
}

// errEmptyDownload marks a strategy that succeeded with zero bytes.
var errEmptyDownload = errors.New("download returned no data")

// Fetcher retrieves the bytes a classification calls for.
type Fetcher struct {
	media      MediaSource
	images     downloader.Downloader
	strategies []Strategy
	timeout    time.Duration
	metrics    metrics.Metrics
	logger     *slog.Logger
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Strategies []Strategy    // default: DefaultStrategies
	Timeout    time.Duration // per strategy attempt, 0 = none
}

// NewFetcher creates a new fetcher.
func NewFetcher(media MediaSource, images downloader.Downloader, cfg FetcherConfig, m metrics.Metrics, logger *slog.Logger) *Fetcher {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Fetcher{
		media:      media,
		images:     images,
		strategies: cfg.Strategies,
		timeout:    cfg.Timeout,
		metrics:    m,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch returns the payload for c. A silent video yields an empty payload
// without running any strategy. Failures are *domain.AcquisitionError of
// kind ErrDownload.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, c domain.MediaClassification) (*domain.MediaPayload, error) {
	switch c.Kind {
	case domain.KindImage:
		return f.FetchImage(ctx, c.ImageURL)
	case domain.KindVideoWithoutAudio:
		return &domain.MediaPayload{}, nil
	default:
		return f.fetchAudio(ctx, rawURL)
	}
}

// FetchImage downloads an image URL directly.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL string) (*domain.MediaPayload, error) {
	if imageURL == "" {
		return nil, domain.NewAcquisitionError(domain.ErrDownload, "fetch image", "post has no image URL", nil)
	}

	result, err := f.images.Fetch(ctx, imageURL)
	if err != nil {
		f.metrics.IncFetchAttempt("image", "error")
		return nil, domain.NewAcquisitionError(domain.ErrDownload, "fetch image", err.Error(), err)
	}
	if len(result.Data) == 0 {
		f.metrics.IncFetchAttempt("image", "empty")
		return nil, domain.NewAcquisitionError(domain.ErrDownload, "fetch image", "empty image body", errEmptyDownload)
	}
	f.metrics.IncFetchAttempt("image", "ok")

	return &domain.MediaPayload{Data: result.Data, Extension: ImageExtension(imageURL, result.Data)}, nil
}

func (f *Fetcher) fetchAudio(ctx context.Context, rawURL string) (*domain.MediaPayload, error) {
	var lastErr error

	for _, s := range f.strategies {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewAcquisitionError(domain.ErrDownload, "fetch", "", err)
		}

		data, ext, err := f.attempt(ctx, rawURL, s)
		if err == nil && len(data) == 0 {
			err = errEmptyDownload
		}
		if err != nil {
			outcome := "error"
			if errors.Is(err, errEmptyDownload) {
				outcome = "empty"
			}
			f.metrics.IncFetchAttempt(s.Name, outcome)
			f.logger.Info("fetch strategy failed", "url", rawURL, "strategy", s.Name, "error", err)
			lastErr = fmt.Errorf("strategy %s: %w", s.Name, err)
			continue
		}

		f.metrics.IncFetchAttempt(s.Name, "ok")
		if ext == "" {
			ext = sniffExtension(data)
		}
		f.logger.Info("media fetched",
			"url", rawURL,
			"strategy", s.Name,
			"ext", ext,
			"size", humanize.Bytes(uint64(len(data))),
		)
		return &domain.MediaPayload{Data: data, Extension: ext}, nil
	}

	return nil, domain.NewAcquisitionError(domain.ErrDownload, "fetch", diagnostic(lastErr), lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, s Strategy) ([]byte, string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.media.Download(ctx, rawURL, s.Selector)
}

// ImageExtension picks an image payload extension: the URL path when it
// names an image, then the sniffed content type, then jpg.
func ImageExtension(imageURL string, data []byte) string {
	if u, err := url.Parse(imageURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		if domain.IsImageExtension(ext) {
			return ext
		}
	}
	if ext := sniffExtension(data); domain.IsImageExtension(ext) {
		return ext
	}
	return "jpg"
}

func sniffExtension(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return strings.TrimPrefix(mimetype.Detect(data).Extension(), ".")
}
