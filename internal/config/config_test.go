package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"state_backend": "redis",
		"redis_url": "redis://localhost:6379/0",
		"workers": 4,
		"privacy": "unlisted",
		"thumbnail_at": 5.5,
		"verbose": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "redis", cfg.StateBackend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "unlisted", cfg.Privacy)
	assert.Equal(t, 5.5, cfg.ThumbnailAt)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
state_backend: postgres
database_url: postgres://localhost/video
artifact_backend: db
outline_beats: 6
related_links: 5
use_browser: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StateBackend)
	assert.Equal(t, "postgres://localhost/video", cfg.DatabaseURL)
	assert.Equal(t, "db", cfg.ArtifactBackend)
	assert.Equal(t, 6, cfg.OutlineBeats)
	assert.Equal(t, 5, cfg.RelatedLinks)
	assert.True(t, cfg.UseBrowser)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{ invalid json }`)

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yml", "workers: [1, 2\n")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "defaults are valid", cfg: Defaults()},
		{name: "unknown backend", cfg: Config{StateBackend: "sqlite"}, wantErr: "state_backend"},
		{name: "unknown artifact backend", cfg: Config{ArtifactBackend: "s3"}, wantErr: "artifact_backend"},
		{name: "redis without url", cfg: Config{StateBackend: "redis"}, wantErr: "redis_url"},
		{name: "postgres without url", cfg: Config{StateBackend: "postgres"}, wantErr: "database_url"},
		{name: "db artifacts without url", cfg: Config{ArtifactBackend: "db"}, wantErr: "database_url"},
		{name: "bad privacy", cfg: Config{Privacy: "secret"}, wantErr: "privacy"},
		{name: "negative workers", cfg: Config{Workers: -1}, wantErr: "workers"},
		{name: "negative beats", cfg: Config{OutlineBeats: -3}, wantErr: "outline_beats"},
		{name: "negative related links", cfg: Config{RelatedLinks: -1}, wantErr: "related_links"},
		{name: "port out of range", cfg: Config{Port: 70000}, wantErr: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Workers: 8, Privacy: "public"}
	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, 8, merged.Workers)
	assert.Equal(t, "public", merged.Privacy)
	assert.Equal(t, "memory", merged.StateBackend)
	assert.Equal(t, 64, merged.QueueCapacity)
	assert.Equal(t, 3.0, merged.ThumbnailAt)
	assert.Equal(t, "ffmpeg", merged.FFmpeg)

	// original is untouched
	assert.Equal(t, "", cfg.StateBackend)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STATE_BACKEND":     "postgres",
		"DATABASE_URL":      "postgres://db/video",
		"ARTIFACT_BASE_URL": "https://media.example.com",
		"GEMINI_API_KEY":    "key",
		"WORKERS":           "3",
		"PORT":              "not-a-number",
	}
	cfg := Config{StateBackend: "memory", Port: 9000}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "postgres", cfg.StateBackend)
	assert.Equal(t, "postgres://db/video", cfg.DatabaseURL)
	assert.Equal(t, "https://media.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 9000, cfg.Port)
}

func TestDurations(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "30m0s", cfg.JobTimeout().String())
	assert.Equal(t, "2s", cfg.PollInterval().String())
	assert.Equal(t, "1h0m0s", cfg.ApprovalTimeout().String())
}
