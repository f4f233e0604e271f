package config

import (
	"fmt"
	"strings"
)

// StorageConfig configures the directory backed image store.
type StorageConfig struct {
	Dir     string `koanf:"dir"`
	BaseURL string `koanf:"baseurl"`
}

// String returns a string representation of the storage configuration.
func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  dir: %s\n", c.Dir))
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	return b.String()
}

func (c *StorageConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("storage directory is not configured")
	}
	if c.BaseURL == "" {
		c.BaseURL = "/uploads"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}
