package config

import (
	"fmt"
	"os"
	"strconv"
)

// MinSigningKeyLength is the shortest accepted approval signing key.
const MinSigningKeyLength = 16

// SigningConfig holds the key for signed approval links.
type SigningConfig struct {
	Key      string
	TTLHours int
}

// NewSigningConfig reads APPROVAL_SIGNING_KEY (required) and
// APPROVAL_LINK_TTL_HOURS (default: 1).
func NewSigningConfig() (*SigningConfig, error) {
	key := os.Getenv("APPROVAL_SIGNING_KEY")
	if key == "" {
		return nil, fmt.Errorf("APPROVAL_SIGNING_KEY is required but not set")
	}

	ttlStr := os.Getenv("APPROVAL_LINK_TTL_HOURS")
	if ttlStr == "" {
		ttlStr = "1"
	}
	ttl, err := strconv.Atoi(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_LINK_TTL_HOURS: %v", err)
	}

	config := &SigningConfig{Key: key, TTLHours: ttl}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *SigningConfig) normalize() error {
	if len(c.Key) < MinSigningKeyLength {
		return fmt.Errorf("APPROVAL_SIGNING_KEY must be at least %d characters", MinSigningKeyLength)
	}
	if c.TTLHours < 1 {
		return fmt.Errorf("APPROVAL_LINK_TTL_HOURS must be at least 1 hour, got: %d", c.TTLHours)
	}
	return nil
}
