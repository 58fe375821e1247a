package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Storage: StorageConfig{TempPath: "/tmp/test"},
		Worker:  WorkerConfig{Count: 2},
		Mealie: MealieConfig{
			URL:    "https://mealie.example.com",
			APIKey: "mealie-key",
		},
		OpenAI: OpenAIConfig{APIKey: "openai-key"},
		Log:    LogConfig{Level: "info"},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing mealie url", func(c *Config) { c.Mealie.URL = "" }},
		{"non-http mealie url", func(c *Config) { c.Mealie.URL = "mealie.local" }},
		{"missing mealie key", func(c *Config) { c.Mealie.APIKey = "" }},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }},
		{"missing temp path", func(c *Config) { c.Storage.TempPath = "" }},
		{"zero workers", func(c *Config) { c.Worker.Count = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 9848},
			want: "0.0.0.0:9848",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEALIE_URL", "https://mealie.example.com/")
	t.Setenv("MEALIE_API_KEY", "mealie-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
}

func TestLoad_EnvOnly_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mealie.URL != "https://mealie.example.com" {
		t.Errorf("Mealie.URL = %q, want trailing slash trimmed", cfg.Mealie.URL)
	}
	if cfg.Worker.Count != 2 {
		t.Errorf("Worker.Count = %d, want 2", cfg.Worker.Count)
	}
	if cfg.Tools.TranscodeTimeout != 2*time.Minute {
		t.Errorf("TranscodeTimeout = %v, want 2m", cfg.Tools.TranscodeTimeout)
	}
	if cfg.Download.Timeout != 120*time.Second {
		t.Errorf("Download.Timeout = %v, want 120s", cfg.Download.Timeout)
	}
	if cfg.Mealie.Timeout != 120*time.Second {
		t.Errorf("Mealie.Timeout = %v, want 120s", cfg.Mealie.Timeout)
	}
	if cfg.Mealie.GroupName != "home" {
		t.Errorf("GroupName = %q, want home", cfg.Mealie.GroupName)
	}
	if cfg.Tools.YtDlpPath != "yt-dlp" {
		t.Errorf("YtDlpPath = %q, want yt-dlp", cfg.Tools.YtDlpPath)
	}
	if cfg.RequestTimeout() <= cfg.ImportTimeout() {
		t.Errorf("RequestTimeout() = %v, want above ImportTimeout() = %v", cfg.RequestTimeout(), cfg.ImportTimeout())
	}
}

func TestConfig_RequestTimeout(t *testing.T) {
	tools := ToolsConfig{
		ProbeTimeout:     time.Minute,
		DownloadTimeout:  5 * time.Minute,
		TranscodeTimeout: 2 * time.Minute,
	}

	tests := []struct {
		name         string
		writeTimeout time.Duration
		want         time.Duration
	}{
		// 1m + 3*5m + 2m + 2*2m + 3*2m = 28m, plus a minute
		{"short write timeout is raised", 10 * time.Minute, 29 * time.Minute},
		{"long write timeout is kept", time.Hour, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Tools = tools
			cfg.OpenAI.Timeout = 2 * time.Minute
			cfg.Mealie.Timeout = 2 * time.Minute
			cfg.Server.WriteTimeout = tt.writeTimeout

			if got := cfg.ImportTimeout(); got != 28*time.Minute {
				t.Errorf("ImportTimeout() = %v, want 28m", got)
			}
			if got := cfg.RequestTimeout(); got != tt.want {
				t.Errorf("RequestTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// envconfig applies defaults over YAML for fields with a default tag,
	// so only fields without one are read from the file here.
	yamlContent := `
mealie:
  url: "https://yaml.mealie.test"
  api_key: "yaml-mealie-key"
openai:
  api_key: "yaml-openai-key"
  extra_prompt: "Use metric units"
tools:
  cookies_path: "/etc/cookies.txt"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mealie.URL != "https://yaml.mealie.test" {
		t.Errorf("Mealie.URL = %q", cfg.Mealie.URL)
	}
	if cfg.OpenAI.ExtraPrompt != "Use metric units" {
		t.Errorf("ExtraPrompt = %q", cfg.OpenAI.ExtraPrompt)
	}
	if cfg.Tools.CookiesPath != "/etc/cookies.txt" {
		t.Errorf("CookiesPath = %q", cfg.Tools.CookiesPath)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
mealie:
  url: "https://yaml.mealie.test"
  api_key: "yaml-mealie-key"
openai:
  api_key: "yaml-openai-key"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("MEALIE_API_KEY", "env-mealie-key")
	t.Setenv("WORKER_COUNT", "5")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mealie.APIKey != "env-mealie-key" {
		t.Errorf("APIKey should be from env, got %q", cfg.Mealie.APIKey)
	}
	if cfg.Worker.Count != 5 {
		t.Errorf("Worker.Count = %d, want 5", cfg.Worker.Count)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
mealie:
  url: "https://x
  api_key: k
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("MEALIE_URL", "")
	t.Setenv("MEALIE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(""); err == nil {
		t.Error("Load should fail validation without required values")
	}
}

func TestLoadAcquisition_SkipsRemoteKeys(t *testing.T) {
	t.Setenv("MEALIE_URL", "")
	t.Setenv("MEALIE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadAcquisition("")
	if err != nil {
		t.Fatalf("LoadAcquisition failed: %v", err)
	}
	if cfg.Storage.TempPath == "" {
		t.Error("TempPath should default")
	}
}
