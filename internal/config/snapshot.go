package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const redactedValue = "<redacted>"

// Redacted returns a copy of cfg that is safe to print.
func (cfg Config) Redacted() Config {
	c := cfg
	c.Mistral.APIKey = redactSecret(cfg.Mistral.APIKey)
	c.Server.AuthToken = redactSecret(cfg.Server.AuthToken)
	return c
}

func redactSecret(value string) string {
	if value == "" {
		return ""
	}
	return redactedValue
}

// YAML renders the redacted config for "config print".
func (cfg Config) YAML() ([]byte, error) {
	return yaml.Marshal(cfg.Redacted())
}

// Save writes cfg to path as TOML. Secrets are never written; the API key
// becomes the ${MISTRAL_API_KEY} placeholder so the file stays shareable.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	c := cfg
	c.Mistral.APIKey = apiKeyPlaceholder
	c.Server.AuthToken = ""

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
