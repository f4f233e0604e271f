package config

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitConfig limits write requests per client IP.
type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// String returns a string representation of the rate limit configuration.
func (c *RateLimitConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Rate Limit ---\n")
	b.WriteString(fmt.Sprintf("  requests: %d\n", c.Requests))
	b.WriteString(fmt.Sprintf("  window: %s\n", c.Window))
	return b.String()
}

// Enabled reports whether write requests are rate limited.
func (c *RateLimitConfig) Enabled() bool {
	return c.Requests > 0
}

func (c *RateLimitConfig) Validate() error {
	if c.Requests < 0 {
		return fmt.Errorf("ratelimit.requests must not be negative")
	}
	if c.Requests > 0 && c.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be greater than 0")
	}
	return nil
}
