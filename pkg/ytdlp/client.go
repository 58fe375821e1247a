// Package ytdlp wraps the yt-dlp binary for metadata probing and format
// selected downloads.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNoVideo is returned when the extractor reports that a post carries no
// video (Instagram image posts).
var ErrNoVideo = errors.New("ytdlp: no video in this post")

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExecError is returned when yt-dlp exits unsuccessfully.
type ExecError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("yt-dlp: %v", e.Err)
	}
	return fmt.Sprintf("yt-dlp: %v: %s", e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Config configures the client.
type Config struct {
	BinaryPath  string // default: "yt-dlp" from PATH
	CookiesPath string // optional Netscape cookies file
	FFmpegPath  string // passed as --ffmpeg-location for merges, empty uses PATH
	TempDir     string // scratch directory for downloads, default os.TempDir()
}

// Client runs yt-dlp. It is safe for concurrent use; the binary is resolved
// once, on first use.
type Client struct {
	cfg      Config
	run      Runner
	lookPath func(string) (string, error)

	once       sync.Once
	binary     string
	resolveErr error
}

// NewClient creates a new yt-dlp client.
func NewClient(cfg Config) *Client {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "yt-dlp"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Client{cfg: cfg, run: execRunner, lookPath: exec.LookPath}
}

// WithRunner replaces the command runner. The binary path is then used as
// configured, without a PATH lookup.
func (c *Client) WithRunner(r Runner) *Client {
	c.run = r
	c.lookPath = func(name string) (string, error) { return name, nil }
	return c
}

func (c *Client) resolve() (string, error) {
	c.once.Do(func() {
		c.binary, c.resolveErr = c.lookPath(c.cfg.BinaryPath)
		if c.resolveErr != nil {
			c.resolveErr = fmt.Errorf("yt-dlp not found: %w", c.resolveErr)
		}
	})
	return c.binary, c.resolveErr
}

// Available reports whether the yt-dlp binary can be resolved.
func (c *Client) Available() bool {
	_, err := c.resolve()
	return err == nil
}

// Version returns the yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, _, err := c.exec(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, []byte, error) {
	bin, err := c.resolve()
	if err != nil {
		return nil, nil, err
	}
	return c.run(ctx, bin, args...)
}

func (c *Client) baseArgs() []string {
	args := []string{"--no-playlist", "--no-warnings", "--no-progress", "--no-colors"}
	if c.cfg.CookiesPath != "" {
		args = append(args, "--cookies", c.cfg.CookiesPath)
	}
	if c.cfg.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", c.cfg.FFmpegPath)
	}
	return args
}

func wrapExecError(args []string, stderr []byte, err error) error {
	msg := strings.TrimSpace(string(stderr))
	if strings.Contains(strings.ToLower(msg), "no video in this post") {
		return fmt.Errorf("%w: %s", ErrNoVideo, msg)
	}
	return &ExecError{Args: args, Stderr: msg, Err: err}
}

// Format is one entry of the extractor's format list.
type Format struct {
	FormatID string `json:"format_id"`
	Ext      string `json:"ext"`
	ACodec   string `json:"acodec"`
	VCodec   string `json:"vcodec"`
	URL      string `json:"url"`
}

// Thumbnail is one entry of the extractor's thumbnail list.
type Thumbnail struct {
	URL string `json:"url"`
}

// Info is the subset of yt-dlp's single-JSON dump used by the pipeline.
type Info struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Thumbnail   string      `json:"thumbnail"`
	Thumbnails  []Thumbnail `json:"thumbnails"`
	URL         string      `json:"url"`
	WebpageURL  string      `json:"webpage_url"`
	Ext         string      `json:"ext"`
	VCodec      string      `json:"vcodec"`
	ACodec      string      `json:"acodec"`
	Formats     []Format    `json:"formats"`
	Extractor   string      `json:"extractor"`
}

// Info fetches metadata without downloading any media.
func (c *Client) Info(ctx context.Context, url string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := append(c.baseArgs(), "--dump-single-json", "--skip-download", url)
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp info: %w", ctx.Err())
		}
		return nil, wrapExecError(args, stderr, err)
	}
	// yt-dlp can exit 0 while only printing the warning for image posts.
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, wrapExecError(args, stderr, errors.New("empty metadata"))
	}

	var info Info
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// Download fetches the media matching selector and returns its bytes and
// extension. The scratch directory is removed before returning.
func (c *Client) Download(ctx context.Context, url, selector string) ([]byte, string, error) {
	if strings.TrimSpace(url) == "" {
		return nil, "", fmt.Errorf("ytdlp: url is required")
	}

	dir := filepath.Join(c.cfg.TempDir, "ytdlp-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := append(c.baseArgs(),
		"-q",
		"--format", selector,
		"-o", filepath.Join(dir, "media.%(ext)s"),
		url,
	)
	if _, stderr, err := c.exec(ctx, args...); err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("yt-dlp download: %w", ctx.Err())
		}
		return nil, "", wrapExecError(args, stderr, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("read download dir: %w", err)
	}
	for _, e := range entries {
		// Skip fragments and partial files left behind by merges.
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") || strings.HasSuffix(e.Name(), ".ytdl") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, "", fmt.Errorf("read downloaded media: %w", err)
		}
		return data, strings.TrimPrefix(filepath.Ext(e.Name()), "."), nil
	}
	return nil, "", fmt.Errorf("yt-dlp produced no file")
}
