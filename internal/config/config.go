package config

import (
	"os"
	"path/filepath"
	"time"

	"codemcp/internal/mistral"
	"codemcp/internal/protocol"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	LogFormatText = "text"
	LogFormatJSON = "json"

	DefaultListen         = protocol.DefaultListenAddr
	DefaultMCPPath        = protocol.DefaultMCPPath
	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 10

	apiKeyPlaceholder = "${MISTRAL_API_KEY}"
)

var (
	Transports = []string{TransportStdio, TransportHTTP}
	LogFormats = []string{LogFormatText, LogFormatJSON}
)

type Config struct {
	Mistral MistralConfig `toml:"mistral" yaml:"mistral"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

type MistralConfig struct {
	APIKey      string        `toml:"api_key" yaml:"api_key"`
	BaseURL     string        `toml:"base_url" yaml:"base_url"`
	Model       string        `toml:"model" yaml:"model"`
	MambaModel  string        `toml:"mamba_model" yaml:"mamba_model"`
	Timeout     time.Duration `toml:"timeout" yaml:"timeout"`
	MinInterval time.Duration `toml:"min_interval" yaml:"min_interval"`
}

type ServerConfig struct {
	Transport string `toml:"transport" yaml:"transport"`
	Listen    string `toml:"listen" yaml:"listen"`
	MCPPath   string `toml:"mcp_path" yaml:"mcp_path"`
	// AuthToken, when set, is required as a bearer token on the HTTP
	// transport.
	AuthToken      string  `toml:"auth_token" yaml:"auth_token"`
	RateLimitRPS   float64 `toml:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst" yaml:"rate_limit_burst"`
}

type LogConfig struct {
	Format  string `toml:"format" yaml:"format"`
	Verbose bool   `toml:"verbose" yaml:"verbose"`
}

func Default() Config {
	return Config{
		Mistral: MistralConfig{
			BaseURL:     mistral.DefaultBaseURL,
			Model:       mistral.DefaultChatModel,
			MambaModel:  mistral.DefaultMambaModel,
			Timeout:     mistral.DefaultTimeout,
			MinInterval: mistral.DefaultMinInterval,
		},
		Server: ServerConfig{
			Transport:      TransportStdio,
			Listen:         DefaultListen,
			MCPPath:        DefaultMCPPath,
			RateLimitRPS:   DefaultRateLimitRPS,
			RateLimitBurst: DefaultRateLimitBurst,
		},
		Log: LogConfig{
			Format: LogFormatText,
		},
	}
}

// DefaultPath returns <user config dir>/codemcp/config.toml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "codemcp", "config.toml"), nil
}

// NewClient builds the Mistral client described by cfg.
func (cfg Config) NewClient() (*mistral.Client, error) {
	client, err := mistral.NewClient(cfg.Mistral.BaseURL, cfg.Mistral.APIKey)
	if err != nil {
		return nil, err
	}
	if cfg.Mistral.Model != "" {
		client.DefaultChatModel = cfg.Mistral.Model
		client.FIMModel = cfg.Mistral.Model
	}
	if cfg.Mistral.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Mistral.Timeout
	}
	client.MinInterval = cfg.Mistral.MinInterval
	return client, nil
}
