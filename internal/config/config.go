// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is loaded from a JSON or YAML file, then overridden by environment
// variables and CLI flags. All fields are optional.
type Config struct {
	// State and artifacts
	StateBackend    string `json:"state_backend,omitempty" yaml:"state_backend,omitempty"` // memory, redis or postgres
	DatabaseURL     string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	RedisURL        string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	ArtifactBackend string `json:"artifact_backend,omitempty" yaml:"artifact_backend,omitempty"` // file or db
	ArtifactDir     string `json:"artifact_dir,omitempty" yaml:"artifact_dir,omitempty"`
	PublicBaseURL   string `json:"public_base_url,omitempty" yaml:"public_base_url,omitempty"` // Base URL for artifact and approval links
	WorkRoot        string `json:"work_root,omitempty" yaml:"work_root,omitempty"`

	// Queue and approvals
	Workers                int `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueCapacity          int `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`
	JobTimeoutMinutes      int `json:"job_timeout_minutes,omitempty" yaml:"job_timeout_minutes,omitempty"`
	PollIntervalSeconds    int `json:"poll_interval_seconds,omitempty" yaml:"poll_interval_seconds,omitempty"`
	ApprovalTimeoutMinutes int `json:"approval_timeout_minutes,omitempty" yaml:"approval_timeout_minutes,omitempty"`

	// Producers
	APIKey                string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`                 // Gemini API key
	YouTubeAPIKey         string  `json:"youtube_api_key,omitempty" yaml:"youtube_api_key,omitempty"` // Data API key for source lookups
	TelegramChatID        string  `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
	Privacy               string  `json:"privacy,omitempty" yaml:"privacy,omitempty"`
	OutlineBeats          int     `json:"outline_beats,omitempty" yaml:"outline_beats,omitempty"`
	RelatedLinks          int     `json:"related_links,omitempty" yaml:"related_links,omitempty"` // Source page links followed when no research URLs are given
	ScreenshotConcurrency int     `json:"screenshot_concurrency,omitempty" yaml:"screenshot_concurrency,omitempty"`
	ThumbnailAt           float64 `json:"thumbnail_at,omitempty" yaml:"thumbnail_at,omitempty"`
	UseBrowser            bool    `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Render thin pages in headless Chrome

	// Media
	FFmpeg           string  `json:"ffmpeg,omitempty" yaml:"ffmpeg,omitempty"`
	FFprobe          string  `json:"ffprobe,omitempty" yaml:"ffprobe,omitempty"`
	MediaConcurrency int     `json:"media_concurrency,omitempty" yaml:"media_concurrency,omitempty"`
	MediaPreset      string  `json:"media_preset,omitempty" yaml:"media_preset,omitempty"`
	PanSeconds       float64 `json:"pan_seconds,omitempty" yaml:"pan_seconds,omitempty"`
	TTSCommand       string  `json:"tts_command,omitempty" yaml:"tts_command,omitempty"`
	TTSVoice         string  `json:"tts_voice,omitempty" yaml:"tts_voice,omitempty"`

	// Server
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		StateBackend:           "memory",
		ArtifactBackend:        "file",
		ArtifactDir:            "artifacts",
		Workers:                2,
		QueueCapacity:          64,
		JobTimeoutMinutes:      30,
		PollIntervalSeconds:    2,
		ApprovalTimeoutMinutes: 60,
		Privacy:                "private",
		OutlineBeats:           8,
		RelatedLinks:           3,
		ScreenshotConcurrency:  2,
		ThumbnailAt:            3,
		FFmpeg:                 "ffmpeg",
		FFprobe:                "ffprobe",
		MediaConcurrency:       1,
		Port:                   8080,
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("STATE_BACKEND", &c.StateBackend)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("ARTIFACT_BACKEND", &c.ArtifactBackend)
	str("ARTIFACT_DIR", &c.ArtifactDir)
	str("ARTIFACT_BASE_URL", &c.PublicBaseURL)
	str("WORK_ROOT", &c.WorkRoot)
	str("GEMINI_API_KEY", &c.APIKey)
	str("YOUTUBE_API_KEY", &c.YouTubeAPIKey)
	str("TELEGRAM_CHAT_ID", &c.TelegramChatID)
	str("TTS_COMMAND", &c.TTSCommand)
	str("TTS_VOICE", &c.TTSVoice)
	num("WORKERS", &c.Workers)
	num("PORT", &c.Port)
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case "", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("config error: 'state_backend' must be memory, redis or postgres, got %q", c.StateBackend)
	}
	switch c.ArtifactBackend {
	case "", "file", "db":
	default:
		return fmt.Errorf("config error: 'artifact_backend' must be file or db, got %q", c.ArtifactBackend)
	}
	if c.StateBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("config error: redis state backend requires 'redis_url'")
	}
	if (c.StateBackend == "postgres" || c.ArtifactBackend == "db") && c.DatabaseURL == "" {
		return fmt.Errorf("config error: postgres storage requires 'database_url'")
	}
	switch c.Privacy {
	case "", "private", "unlisted", "public":
	default:
		return fmt.Errorf("config error: 'privacy' must be private, unlisted or public")
	}

	for name, v := range map[string]int{
		"workers":                  c.Workers,
		"queue_capacity":           c.QueueCapacity,
		"job_timeout_minutes":      c.JobTimeoutMinutes,
		"poll_interval_seconds":    c.PollIntervalSeconds,
		"approval_timeout_minutes": c.ApprovalTimeoutMinutes,
		"outline_beats":            c.OutlineBeats,
		"related_links":            c.RelatedLinks,
		"screenshot_concurrency":   c.ScreenshotConcurrency,
		"media_concurrency":        c.MediaConcurrency,
	} {
		if v < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}
	float := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}

	str(&result.StateBackend, defaults.StateBackend)
	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.RedisURL, defaults.RedisURL)
	str(&result.ArtifactBackend, defaults.ArtifactBackend)
	str(&result.ArtifactDir, defaults.ArtifactDir)
	str(&result.PublicBaseURL, defaults.PublicBaseURL)
	str(&result.WorkRoot, defaults.WorkRoot)
	str(&result.APIKey, defaults.APIKey)
	str(&result.YouTubeAPIKey, defaults.YouTubeAPIKey)
	str(&result.TelegramChatID, defaults.TelegramChatID)
	str(&result.Privacy, defaults.Privacy)
	str(&result.FFmpeg, defaults.FFmpeg)
	str(&result.FFprobe, defaults.FFprobe)
	str(&result.MediaPreset, defaults.MediaPreset)
	str(&result.TTSCommand, defaults.TTSCommand)
	str(&result.TTSVoice, defaults.TTSVoice)

	num(&result.Workers, defaults.Workers)
	num(&result.QueueCapacity, defaults.QueueCapacity)
	num(&result.JobTimeoutMinutes, defaults.JobTimeoutMinutes)
	num(&result.PollIntervalSeconds, defaults.PollIntervalSeconds)
	num(&result.ApprovalTimeoutMinutes, defaults.ApprovalTimeoutMinutes)
	num(&result.OutlineBeats, defaults.OutlineBeats)
	num(&result.RelatedLinks, defaults.RelatedLinks)
	num(&result.ScreenshotConcurrency, defaults.ScreenshotConcurrency)
	num(&result.MediaConcurrency, defaults.MediaConcurrency)
	num(&result.Port, defaults.Port)

	float(&result.ThumbnailAt, defaults.ThumbnailAt)
	float(&result.PanSeconds, defaults.PanSeconds)

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// JobTimeout is the per-job deadline.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMinutes) * time.Minute
}

// PollInterval is how often an awaiting step re-reads its status.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ApprovalTimeout is how long a step may wait for a decision.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutMinutes) * time.Minute
}
