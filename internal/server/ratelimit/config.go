package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// Default applies to requests no rule matches.
	Default Rule
	Rules   []Rule
	// Allow bypasses limiting; Deny rejects outright. Both are keyed by client IP.
	Allow map[string]bool
	Deny  map[string]bool
	// Buckets idle longer than IdleTTL are dropped every SweepInterval.
	SweepInterval time.Duration
	IdleTTL       time.Duration
}

// DefaultConfig returns limits suited to a single pipeline server.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		Default:       Rule{Name: "default", Limit: 1000, Window: time.Minute},
		Rules:         DefaultRules(),
		Allow:         map[string]bool{},
		Deny:          map[string]bool{},
		SweepInterval: 5 * time.Minute,
		IdleTTL:       time.Hour,
	}
}

// LoadConfig reads RATE_LIMIT_* environment variables over DefaultConfig.
func LoadConfig() *Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if v, err := strconv.ParseBool(getenv("RATE_LIMIT_ENABLED")); err == nil {
		cfg.Enabled = v
	}
	if !cfg.Enabled {
		return cfg
	}
	if n, err := strconv.Atoi(getenv("RATE_LIMIT_DEFAULT_LIMIT")); err == nil {
		cfg.Default.Limit = n
	}
	if d, err := time.ParseDuration(getenv("RATE_LIMIT_DEFAULT_WINDOW")); err == nil && d > 0 {
		cfg.Default.Window = d
	}
	if d, err := time.ParseDuration(getenv("RATE_LIMIT_SWEEP_INTERVAL")); err == nil {
		cfg.SweepInterval = d
	}
	cfg.Allow = ipSet(getenv("RATE_LIMIT_ALLOWLIST"))
	cfg.Deny = ipSet(getenv("RATE_LIMIT_DENYLIST"))
	return cfg
}

func ipSet(list string) map[string]bool {
	set := make(map[string]bool)
	for ip := range strings.SplitSeq(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}
	return set
}
