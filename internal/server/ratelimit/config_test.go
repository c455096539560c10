package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig(envOf(nil))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1000, cfg.Default.Limit)
	assert.Equal(t, time.Minute, cfg.Default.Window)
	assert.Empty(t, cfg.Allow)
	assert.NotEmpty(t, cfg.Rules)
}

func TestLoadConfig_Env(t *testing.T) {
	cfg := loadConfig(envOf(map[string]string{
		"RATE_LIMIT_ENABLED":        "true",
		"RATE_LIMIT_DEFAULT_LIMIT":  "50",
		"RATE_LIMIT_DEFAULT_WINDOW": "30s",
		"RATE_LIMIT_ALLOWLIST":      "10.0.0.1, 10.0.0.2",
		"RATE_LIMIT_DENYLIST":       "192.168.1.9",
	}))
	assert.Equal(t, 50, cfg.Default.Limit)
	assert.Equal(t, 30*time.Second, cfg.Default.Window)
	assert.True(t, cfg.Allow["10.0.0.2"])
	assert.True(t, cfg.Deny["192.168.1.9"])
}

func TestLoadConfig_IgnoresBadValues(t *testing.T) {
	cfg := loadConfig(envOf(map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT":  "lots",
		"RATE_LIMIT_DEFAULT_WINDOW": "-5s",
	}))
	assert.Equal(t, 1000, cfg.Default.Limit)
	assert.Equal(t, time.Minute, cfg.Default.Window)
}

func TestLoadConfig_Disabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	assert.False(t, LoadConfig().Enabled)
}

func TestMatch_DefaultRules(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		method   string
		path     string
		wantRule string
		exempt   bool
	}{
		{method: "GET", path: "/health", wantRule: "health", exempt: true},
		{method: "GET", path: "/sessions/abc/events", wantRule: "events", exempt: true},
		{method: "POST", path: "/jobs", wantRule: "start"},
		{method: "POST", path: "/jobs/job_20260101_120000_deadbeef/cancel", wantRule: "job-actions"},
		{method: "POST", path: "/jobs/job_20260101_120000_deadbeef/steps/script/actions", wantRule: "job-actions"},
		{method: "POST", path: "/sessions/abc/resume", wantRule: "resume"},
		{method: "GET", path: "/approvals/token", wantRule: "approvals"},
		{method: "POST", path: "/telegram/webhook", wantRule: "telegram"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := Match(rules, tt.method, tt.path)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantRule, got.Name)
			assert.Equal(t, tt.exempt, got.Exempt())
		})
	}

	assert.Nil(t, Match(rules, "GET", "/jobs/abc"), "reads use the default rule")
	assert.Nil(t, Match(rules, "GET", "/approvals/a/b"))
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("/jobs", "/jobs/"))
	assert.True(t, matchPattern("/jobs/*", "/jobs/x"))
	assert.False(t, matchPattern("/jobs/*", "/jobs"))
	assert.False(t, matchPattern("/jobs/*", "/jobs/x/y"))
	assert.True(t, matchPattern("/jobs/**", "/jobs/x/y/z"))
	assert.False(t, matchPattern("/jobs/**", "/sessions/x"))
}
