// Package media decides what a social post contains, fetches the relevant
// bytes and normalizes any audio into speech-ready WAV.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/pkg/ytdlp"
)

// MetadataSource resolves post metadata without downloading media.
type MetadataSource interface {
	Info(ctx context.Context, url string) (*ytdlp.Info, error)
}

// Prober turns a post URL into PostMetadata.
type Prober struct {
	source  MetadataSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber creates a new prober. A zero timeout means no extra deadline.
func NewProber(source MetadataSource, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		source:  source,
		timeout: timeout,
		logger:  logger.With("component", "prober"),
	}
}

// Probe fetches metadata for rawURL. Failures are *domain.AcquisitionError
// of kind ErrMetadataFetch or ErrNoVideoInPost.
func (p *Prober) Probe(ctx context.Context, rawURL string) (domain.PostMetadata, error) {
	if !isHTTPURL(rawURL) {
		return domain.PostMetadata{}, domain.NewAcquisitionError(domain.ErrMetadataFetch, "probe", "malformed URL", nil)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	info, err := p.source.Info(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ytdlp.ErrNoVideo) {
			return domain.PostMetadata{}, domain.NewAcquisitionError(domain.ErrNoVideoInPost, "probe", "", err)
		}
		p.logger.Warn("metadata fetch failed", "url", rawURL, "error", err)
		return domain.PostMetadata{}, domain.NewAcquisitionError(domain.ErrMetadataFetch, "probe", diagnostic(err), err)
	}

	meta := MetadataFromInfo(rawURL, info)
	p.logger.Debug("metadata fetched",
		"url", rawURL,
		"ext", meta.ContainerExtension,
		"vcodec", meta.VideoCodec,
		"acodec", meta.AudioCodec,
		"formats", len(meta.AlternateFormats),
	)
	return meta, nil
}

// MetadataFromInfo maps an extractor dump onto PostMetadata.
func MetadataFromInfo(sourceURL string, info *ytdlp.Info) domain.PostMetadata {
	meta := domain.PostMetadata{
		SourceURL:          sourceURL,
		Title:              info.Title,
		Description:        strings.TrimSpace(info.Description),
		ThumbnailURL:       info.Thumbnail,
		MediaURL:           info.URL,
		ContainerExtension: info.Ext,
		VideoCodec:         info.VCodec,
		AudioCodec:         info.ACodec,
	}
	if meta.Description == "" {
		meta.Description = domain.DefaultDescription
	}
	if meta.ThumbnailURL == "" && len(info.Thumbnails) > 0 {
		// yt-dlp orders thumbnails by preference, best last.
		meta.ThumbnailURL = info.Thumbnails[len(info.Thumbnails)-1].URL
	}
	if meta.MediaURL == "" && len(info.Thumbnails) > 0 {
		meta.MediaURL = info.Thumbnails[0].URL
	}

	if len(info.Formats) > 0 {
		meta.AlternateFormats = make([]domain.FormatDescriptor, 0, len(info.Formats))
		for _, f := range info.Formats {
			meta.AlternateFormats = append(meta.AlternateFormats, domain.FormatDescriptor{
				AudioCodec: f.ACodec,
				VideoCodec: f.VCodec,
				Extension:  f.Ext,
			})
		}
	}
	return meta
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// diagnostic extracts the most useful text from a tool error.
func diagnostic(err error) string {
	var ee *ytdlp.ExecError
	if errors.As(err, &ee) && ee.Stderr != "" {
		return ee.Stderr
	}
	return fmt.Sprint(err)
}
