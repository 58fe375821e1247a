package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExitError is returned when ffmpeg or ffprobe exits unsuccessfully.
type ExitError struct {
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Config configures the processor binaries.
type Config struct {
	FFmpegPath  string // default: "ffmpeg" from PATH
	FFprobePath string // default: "ffprobe" from PATH
}

// Processor wraps the ffmpeg and ffprobe binaries.
type Processor struct {
	cfg      Config
	run      Runner
	lookPath func(string) (string, error)

	once        sync.Once
	ffmpegPath  string
	ffprobePath string
	resolveErr  error
}

// NewProcessor creates a new processor. Binaries are resolved on first use.
func NewProcessor(cfg Config) *Processor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &Processor{cfg: cfg, run: ExecRunner, lookPath: exec.LookPath}
}

// WithRunner replaces the command runner. Binary paths are then used as
// configured, without a PATH lookup.
func (p *Processor) WithRunner(r Runner) *Processor {
	p.run = r
	p.lookPath = func(name string) (string, error) { return name, nil }
	return p
}

func (p *Processor) resolve() error {
	p.once.Do(func() {
		if p.ffmpegPath, p.resolveErr = p.lookPath(p.cfg.FFmpegPath); p.resolveErr != nil {
			p.resolveErr = fmt.Errorf("ffmpeg not found: %w", p.resolveErr)
			return
		}
		// ffprobe is only needed for Inspect; a missing binary is reported there.
		p.ffprobePath, _ = p.lookPath(p.cfg.FFprobePath)
	})
	return p.resolveErr
}

// WAVArgs returns the arguments converting inPath to mono 16 kHz 16-bit PCM
// WAV at outPath. A missing audio stream maps to an empty selection rather
// than an error, so ffmpeg reports it through stderr.
func WAVArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inPath,
		"-map", "0:a:0?",
		"-vn", "-sn", "-dn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	}
}

// ToWAV transcodes inPath to canonical speech WAV at outPath.
// Failures carry ffmpeg's stderr in an *ExitError.
func (p *Processor) ToWAV(ctx context.Context, inPath, outPath string) error {
	if err := p.resolve(); err != nil {
		return err
	}

	_, stderr, err := p.run(ctx, p.ffmpegPath, WAVArgs(inPath, outPath)...)
	if err != nil {
		if ctx.Err() != nil {
			return &ExitError{Stderr: strings.TrimSpace(string(stderr)), Err: ctx.Err()}
		}
		return &ExitError{Stderr: strings.TrimSpace(string(stderr)), Err: err}
	}
	return nil
}

// MediaInfo contains stream metadata about a media file.
type MediaInfo struct {
	Duration   float64 // Duration in seconds
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	VideoCodec string
	SampleRate int
	Channels   int
	FileSize   int64
}

// Inspect reads stream metadata with ffprobe.
func (p *Processor) Inspect(ctx context.Context, path string) (*MediaInfo, error) {
	if err := p.resolve(); err != nil {
		return nil, err
	}
	if p.ffprobePath == "" {
		return nil, fmt.Errorf("ffprobe not found: %s", p.cfg.FFprobePath)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	output, stderr, err := p.run(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, &ExitError{Stderr: strings.TrimSpace(string(stderr)), Err: err}
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func parseProbe(output []byte) (*MediaInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = s.CodecName
			info.Channels = s.Channels
			if sr, err := strconv.Atoi(s.SampleRate); err == nil {
				info.SampleRate = sr
			}
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.VideoCodec = s.CodecName
			}
		}
	}
	return info, nil
}

// Available reports whether the ffmpeg binary can be resolved.
func (p *Processor) Available() bool {
	return p.resolve() == nil
}

// Version returns the first line of ffmpeg -version.
func (p *Processor) Version(ctx context.Context) (string, error) {
	if err := p.resolve(); err != nil {
		return "", err
	}
	output, _, err := p.run(ctx, p.ffmpegPath, "-version")
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}
