package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Tools    ToolsConfig    `yaml:"tools"`
	Download DownloadConfig `yaml:"download"`
	Mealie   MealieConfig   `yaml:"mealie"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host             string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port             int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey           string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"30m"`
	ImportRatePerMin int           `yaml:"import_rate_per_min" envconfig:"IMPORT_RATE_PER_MIN" default:"30"` // 0 disables
}

// StorageConfig holds scratch storage configuration. Nothing is persisted.
type StorageConfig struct {
	TempPath      string        `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/tmp/recipegrabba"`
	MinFreeBytes  uint64        `yaml:"min_free_bytes" envconfig:"STORAGE_MIN_FREE_BYTES" default:"268435456"` // 256MB, checked by /ready
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"STORAGE_SWEEP_INTERVAL" default:"10m"`
	SweepMaxAge   time.Duration `yaml:"sweep_max_age" envconfig:"STORAGE_SWEEP_MAX_AGE" default:"1h"`
	HistoryPath   string        `yaml:"history_path" envconfig:"STORAGE_HISTORY_PATH"` // SQLite file, empty keeps history in memory
}

// WorkerConfig bounds concurrent import pipelines.
type WorkerConfig struct {
	Count int `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
}

// ToolsConfig holds external binary configuration.
type ToolsConfig struct {
	YtDlpPath        string        `yaml:"ytdlp_path" envconfig:"TOOLS_YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath       string        `yaml:"ffmpeg_path" envconfig:"TOOLS_FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath      string        `yaml:"ffprobe_path" envconfig:"TOOLS_FFPROBE_PATH" default:"ffprobe"`
	CookiesPath      string        `yaml:"cookies_path" envconfig:"TOOLS_COOKIES_PATH"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" envconfig:"TOOLS_PROBE_TIMEOUT" default:"60s"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" envconfig:"TOOLS_DOWNLOAD_TIMEOUT" default:"5m"`
	TranscodeTimeout time.Duration `yaml:"transcode_timeout" envconfig:"TOOLS_TRANSCODE_TIMEOUT" default:"2m"`
}

// DownloadConfig holds direct HTTP download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"120s"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// MealieConfig holds recipe manager configuration.
type MealieConfig struct {
	URL       string        `yaml:"url" envconfig:"MEALIE_URL"`
	APIKey    string        `yaml:"api_key" envconfig:"MEALIE_API_KEY"`
	GroupName string        `yaml:"group_name" envconfig:"MEALIE_GROUP_NAME" default:"home"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"MEALIE_TIMEOUT" default:"120s"`
}

// OpenAIConfig holds transcription and generation API configuration.
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL            string        `yaml:"base_url" envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	TranscriptionModel string        `yaml:"transcription_model" envconfig:"OPENAI_TRANSCRIPTION_MODEL" default:"whisper-1"`
	TextModel          string        `yaml:"text_model" envconfig:"OPENAI_TEXT_MODEL" default:"gpt-4o-mini"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"OPENAI_TIMEOUT" default:"120s"`
	ExtraPrompt        string        `yaml:"extra_prompt" envconfig:"EXTRA_PROMPT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" default:"auto"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadAcquisition is Load for the acquire command, which never talks to
// Mealie or OpenAI and so skips their required keys.
func LoadAcquisition(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.TempPath == "" {
		return nil, fmt.Errorf("validate config: STORAGE_TEMP_PATH is required")
	}
	return cfg, nil
}

func read(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.Mealie.URL = strings.TrimRight(cfg.Mealie.URL, "/")
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Mealie.URL == "" {
		return fmt.Errorf("MEALIE_URL is required")
	}
	if !strings.HasPrefix(c.Mealie.URL, "http://") && !strings.HasPrefix(c.Mealie.URL, "https://") {
		return fmt.Errorf("MEALIE_URL must be an http(s) URL")
	}
	if c.Mealie.APIKey == "" {
		return fmt.Errorf("MEALIE_API_KEY is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

// fetchStrategies is the number of yt-dlp format selectors a URL import
// may try.
const fetchStrategies = 3

// ImportTimeout is the worst case of one URL import when every external
// call runs into its timeout: probe, all fetch strategies, transcode,
// transcription and generation, and the duplicate check, create and lookup
// against Mealie.
func (c *Config) ImportTimeout() time.Duration {
	return c.Tools.ProbeTimeout +
		fetchStrategies*c.Tools.DownloadTimeout +
		c.Tools.TranscodeTimeout +
		2*c.OpenAI.Timeout +
		3*c.Mealie.Timeout
}

// RequestTimeout bounds import requests and their event streams. It is
// write_timeout, raised to leave a minute past ImportTimeout.
func (c *Config) RequestTimeout() time.Duration {
	return max(c.Server.WriteTimeout, c.ImportTimeout()+time.Minute)
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
