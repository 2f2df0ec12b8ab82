package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"codemcp/internal/model"
)

// Validate checks required fields and enum constraints. Every failure is a
// CONFIG_INVALID ProviderError with an actionable message.
func Validate(cfg *Config) error {
	if cfg == nil {
		return model.NewError(model.KindConfig, "nil config")
	}

	key := strings.TrimSpace(cfg.Mistral.APIKey)
	if key == "" || key == apiKeyPlaceholder {
		return model.NewError(model.KindConfig, "missing MISTRAL_API_KEY\nSet env: MISTRAL_API_KEY=...\nOr add api_key under [mistral] in config.toml")
	}

	u, err := url.Parse(strings.TrimSpace(cfg.Mistral.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Errorf(model.KindConfig, "mistral.base_url=%q must be an absolute http(s) URL", cfg.Mistral.BaseURL)
	}
	if strings.TrimSpace(cfg.Mistral.Model) == "" {
		return model.NewError(model.KindConfig, "mistral.model must not be empty")
	}
	if strings.TrimSpace(cfg.Mistral.MambaModel) == "" {
		return model.NewError(model.KindConfig, "mistral.mamba_model must not be empty")
	}
	if cfg.Mistral.Timeout <= 0 {
		return model.Errorf(model.KindConfig, "mistral.timeout=%s must be positive", cfg.Mistral.Timeout)
	}
	if cfg.Mistral.MinInterval < 0 {
		return model.Errorf(model.KindConfig, "mistral.min_interval=%s must not be negative", cfg.Mistral.MinInterval)
	}

	if !stringIn(cfg.Server.Transport, Transports) {
		return model.Errorf(model.KindConfig, "server.transport=%q; allowed: %s", cfg.Server.Transport, strings.Join(Transports, ", "))
	}
	if err := validateListen(cfg.Server.Listen); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Server.MCPPath, "/") {
		return model.Errorf(model.KindConfig, "server.mcp_path=%q must start with \"/\"", cfg.Server.MCPPath)
	}
	if cfg.Server.AuthToken != "" && strings.TrimSpace(cfg.Server.AuthToken) == "" {
		return model.NewError(model.KindConfig, "CODEMCP_AUTH_TOKEN must not be whitespace-only")
	}
	if cfg.Server.RateLimitRPS < 0 {
		return model.Errorf(model.KindConfig, "server.rate_limit_rps=%v must not be negative", cfg.Server.RateLimitRPS)
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return model.Errorf(model.KindConfig, "server.rate_limit_burst=%d must be at least 1", cfg.Server.RateLimitBurst)
	}

	if !stringIn(cfg.Log.Format, LogFormats) {
		return model.Errorf(model.KindConfig, "log.format=%q; allowed: %s", cfg.Log.Format, strings.Join(LogFormats, ", "))
	}
	return nil
}

func validateListen(listen string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(listen))
	if err != nil {
		return model.Errorf(model.KindConfig, "server.listen=%q must be host:port (e.g. %q)", listen, DefaultListen)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return model.Errorf(model.KindConfig, "server.listen=%q has an invalid port", listen)
	}
	return nil
}

func stringIn(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
