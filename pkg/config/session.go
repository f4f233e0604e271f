package config

import (
	"fmt"
	"strings"
)

const minSessionSecretLen = 32

// SessionConfig configures the cookie used for flash messages.
type SessionConfig struct {
	Name   string `koanf:"name"`
	Secret string `koanf:"secret"`
	Secure bool   `koanf:"secure"`
}

// String returns a string representation of the session configuration without the secret.
func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  name: %s\n", c.Name))
	b.WriteString(fmt.Sprintf("  secure: %t\n", c.Secure))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	if len(c.Secret) < minSessionSecretLen {
		return fmt.Errorf("session secret must be at least %d characters", minSessionSecretLen)
	}
	if c.Name == "" {
		c.Name = "catalog_session"
	}
	return nil
}
