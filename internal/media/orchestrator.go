package media

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/metrics"
)

// Acquirer runs probe, fetch and normalize for one post URL.
type Acquirer struct {
	prober     *Prober
	fetcher    *Fetcher
	normalizer *Normalizer
	metrics    metrics.Metrics
	logger     *slog.Logger
}

// NewAcquirer creates a new acquirer.
func NewAcquirer(prober *Prober, fetcher *Fetcher, normalizer *Normalizer, m metrics.Metrics, logger *slog.Logger) *Acquirer {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Acquirer{
		prober:     prober,
		fetcher:    fetcher,
		normalizer: normalizer,
		metrics:    m,
		logger:     logger.With("component", "acquirer"),
	}
}

// Acquire resolves rawURL into description, thumbnail and, when the post
// has speech, normalized audio. Errors are *domain.AcquisitionError.
func (a *Acquirer) Acquire(ctx context.Context, rawURL string) (*domain.AcquisitionResult, error) {
	log := a.logger.With("url", rawURL)

	var meta domain.PostMetadata
	err := a.stage("probe", func() (err error) {
		meta, err = a.prober.Probe(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, a.fail("probe", err)
	}

	class := domain.Classify(meta)
	log.Info("post classified", "kind", class.Kind)

	result := &domain.AcquisitionResult{
		ThumbnailURL: meta.ThumbnailURL,
		Description:  meta.Description,
		Title:        meta.Title,
		MediaType:    class.MediaType(),
	}

	switch class.Kind {
	case domain.KindImage:
		var image *domain.MediaPayload
		err := a.stage("fetch", func() (err error) {
			image, err = a.fetcher.Fetch(ctx, rawURL, class)
			return err
		})
		if err != nil {
			return nil, a.fail("fetch", err)
		}
		result.Image = image
		result.ImageURL = class.ImageURL
		return a.succeed(result, "image"), nil

	case domain.KindVideoWithoutAudio:
		return a.succeed(result, "silent"), nil
	}

	var payload *domain.MediaPayload
	err = a.stage("fetch", func() (err error) {
		payload, err = a.fetcher.Fetch(ctx, rawURL, class)
		return err
	})
	if err != nil {
		return nil, a.fail("fetch", err)
	}

	var audio *domain.NormalizedAudio
	err = a.stage("normalize", func() (err error) {
		audio, err = a.normalizer.Normalize(ctx, payload)
		return err
	})
	if errors.Is(err, domain.ErrNoAudioTrack) {
		return a.degradeNoAudio(result, log), nil
	}
	if err != nil {
		return nil, a.fail("normalize", err)
	}

	result.Audio = audio
	return a.succeed(result, "audio"), nil
}

// degradeNoAudio turns a missing audio track into a successful result
// without audio. Metadata claimed audio but the media had none.
func (a *Acquirer) degradeNoAudio(result *domain.AcquisitionResult, log *slog.Logger) *domain.AcquisitionResult {
	log.Info("no audio track found, continuing description-only")
	result.Audio = nil
	return a.succeed(result, "no_audio")
}

func (a *Acquirer) succeed(result *domain.AcquisitionResult, outcome string) *domain.AcquisitionResult {
	a.metrics.IncAcquisition(string(result.MediaType), outcome)
	return result
}

// fail returns err as an *AcquisitionError. Untagged errors take the kind
// of the stage they came from.
func (a *Acquirer) fail(stage string, err error) error {
	var ae *domain.AcquisitionError
	if !errors.As(err, &ae) {
		ae = domain.NewAcquisitionError(stageKind(stage), stage, err.Error(), err)
	}
	a.metrics.IncAcquisition(kindLabel(ae.Kind), "error")
	return ae
}

func stageKind(stage string) error {
	switch stage {
	case "fetch":
		return domain.ErrDownload
	case "normalize":
		return domain.ErrTranscode
	default:
		return domain.ErrMetadataFetch
	}
}

func (a *Acquirer) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	a.metrics.ObserveStage(name, time.Since(start).Seconds())
	return err
}

func kindLabel(kind error) string {
	switch kind {
	case domain.ErrMetadataFetch:
		return "metadata_fetch"
	case domain.ErrNoVideoInPost:
		return "no_video"
	case domain.ErrDownload:
		return "download"
	case domain.ErrTranscode:
		return "transcode"
	default:
		return "other"
	}
}
