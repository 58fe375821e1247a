package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/pkg/ffmpeg"
)

// Transcoder converts a media file into speech WAV.
type Transcoder interface {
	ToWAV(ctx context.Context, inPath, outPath string) error
}

// noAudioMarkers are ffmpeg stderr fragments meaning the input has no
// audio to extract.
var noAudioMarkers = []string{
	"does not contain any stream",
	"output file is empty",
	"no audio stream",
	"matches no streams",
	"contains no audio",
}

// Normalizer turns a media payload into mono 16 kHz PCM WAV.
type Normalizer struct {
	transcoder Transcoder
	tempDir    string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewNormalizer creates a new normalizer writing scratch files to tempDir.
func NewNormalizer(transcoder Transcoder, tempDir string, timeout time.Duration, logger *slog.Logger) *Normalizer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Normalizer{
		transcoder: transcoder,
		tempDir:    tempDir,
		timeout:    timeout,
		logger:     logger.With("component", "normalizer"),
	}
}

// Normalize transcodes payload. An empty payload, or one ffmpeg finds
// no audio in, fails with ErrNoAudioTrack. Other failures are ErrTranscode.
func (n *Normalizer) Normalize(ctx context.Context, payload *domain.MediaPayload) (*domain.NormalizedAudio, error) {
	if payload == nil || payload.Empty() {
		return nil, domain.NewAcquisitionError(domain.ErrNoAudioTrack, "normalize", "empty payload", nil)
	}

	if err := os.MkdirAll(n.tempDir, 0755); err != nil {
		return nil, domain.NewAcquisitionError(domain.ErrTranscode, "normalize", "create temp dir", err)
	}

	id := uuid.New().String()
	ext := strings.TrimPrefix(payload.Extension, ".")
	if ext == "" {
		ext = "bin"
	}
	inPath := filepath.Join(n.tempDir, fmt.Sprintf("input-%s.%s", id, ext))
	outPath := filepath.Join(n.tempDir, fmt.Sprintf("output-%s.wav", id))
	defer n.release(inPath, outPath)

	if err := os.WriteFile(inPath, payload.Data, 0600); err != nil {
		return nil, domain.NewAcquisitionError(domain.ErrTranscode, "normalize", "write input", err)
	}

	tctx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := n.transcoder.ToWAV(tctx, inPath, outPath); err != nil {
		stderr := stderrOf(err)
		if IsNoAudio(stderr) {
			n.logger.Info("no audio stream in media", "ext", ext)
			return nil, domain.NewAcquisitionError(domain.ErrNoAudioTrack, "normalize", "", err)
		}
		if stderr == "" {
			stderr = err.Error()
		}
		return nil, domain.NewAcquisitionError(domain.ErrTranscode, "normalize", stderr, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, domain.NewAcquisitionError(domain.ErrTranscode, "normalize", "invalid WAV output (0 bytes)", err)
	}
	audio, err := domain.NewNormalizedAudio(data)
	if err != nil {
		return nil, domain.NewAcquisitionError(domain.ErrTranscode, "normalize", err.Error(), err)
	}

	n.logger.Debug("audio normalized",
		"input", humanize.Bytes(uint64(payload.Size())),
		"output", humanize.Bytes(uint64(audio.Len())),
	)
	return audio, nil
}

func (n *Normalizer) release(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			n.logger.Warn("failed to remove temp file", "path", p, "error", err)
		}
	}
}

// IsNoAudio reports whether ffmpeg diagnostics mean there was no audio.
func IsNoAudio(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, m := range noAudioMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func stderrOf(err error) string {
	var ee *ffmpeg.ExitError
	if errors.As(err, &ee) {
		return ee.Stderr
	}
	return ""
}
