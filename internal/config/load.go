package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"codemcp/internal/model"
)

// Options for loading config.
type Options struct {
	// ConfigPath is the TOML file to read. Empty means DefaultPath(); a
	// missing default file is not an error, a missing explicit one is.
	ConfigPath string
	// Dir holds the .env and .env.local files. Empty means the working
	// directory.
	Dir          string
	SkipValidate bool
	// Overrides apply last (flags > env > dotenv > file > defaults).
	Overrides *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	Transport *string
	Listen    *string
	MCPPath   *string
	Model     *string
	LogFormat *string
	Verbose   *bool
}

// Load builds config with precedence:
// defaults -> config.toml -> env (with .env.local and .env filling unset
// variables) -> Overrides.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if err := loadDotEnv(opts.Dir); err != nil {
		return nil, model.WrapError(model.KindConfig, "failed loading dotenv files: "+err.Error(), err)
	}
	if err := mergeFile(&cfg, opts.ConfigPath); err != nil {
		return nil, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return nil, err
	}
	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadDotEnv sets variables from .env.local and then .env, never replacing a
// variable that already has a non-blank value. .env.local therefore wins
// over .env, and the real environment wins over both.
func loadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := name
		if dir != "" {
			path = filepath.Join(dir, name)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		for k, v := range values {
			if existing, ok := os.LookupEnv(k); ok && strings.TrimSpace(existing) != "" {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeFile(cfg *Config, path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil
		}
		path = defaultPath
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return model.WrapError(model.KindConfig, fmt.Sprintf("cannot read config file %s: %v", path, err), err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return model.WrapError(model.KindConfig, fmt.Sprintf("malformed TOML in %s: %v", path, err), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return model.Errorf(model.KindConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func mergeEnv(cfg *Config) error {
	if v := envValue("MISTRAL_API_KEY"); v != "" {
		cfg.Mistral.APIKey = v
	}
	if v := envValue("MISTRAL_BASE_URL"); v != "" {
		cfg.Mistral.BaseURL = v
	}
	if v := envValue("CODEMCP_MODEL"); v != "" {
		cfg.Mistral.Model = v
	}
	if v := envValue("CODEMCP_MAMBA_MODEL"); v != "" {
		cfg.Mistral.MambaModel = v
	}
	if err := envDuration("CODEMCP_TIMEOUT", &cfg.Mistral.Timeout); err != nil {
		return err
	}
	if err := envDuration("CODEMCP_MIN_INTERVAL", &cfg.Mistral.MinInterval); err != nil {
		return err
	}
	if v := envValue("CODEMCP_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := envValue("CODEMCP_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := envValue("CODEMCP_MCP_PATH"); v != "" {
		cfg.Server.MCPPath = v
	}
	if v := envValue("CODEMCP_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := envValue("CODEMCP_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.Errorf(model.KindConfig, "CODEMCP_RATE_LIMIT_RPS=%q is not a number", v)
		}
		cfg.Server.RateLimitRPS = rps
	}
	if v := envValue("CODEMCP_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return model.Errorf(model.KindConfig, "CODEMCP_RATE_LIMIT_BURST=%q is not an integer", v)
		}
		cfg.Server.RateLimitBurst = burst
	}
	if v := envValue("CODEMCP_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := envValue("CODEMCP_VERBOSE"); v != "" {
		cfg.Log.Verbose = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// envDuration accepts Go durations ("250ms", "30s") or a bare number of
// milliseconds.
func envDuration(key string, dst *time.Duration) error {
	v := envValue(key)
	if v == "" {
		return nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return model.Errorf(model.KindConfig, "%s=%q is not a duration", key, v)
	}
	*dst = d
	return nil
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Transport != nil {
		cfg.Server.Transport = *o.Transport
	}
	if o.Listen != nil {
		cfg.Server.Listen = *o.Listen
	}
	if o.MCPPath != nil {
		cfg.Server.MCPPath = *o.MCPPath
	}
	if o.Model != nil {
		cfg.Mistral.Model = *o.Model
	}
	if o.LogFormat != nil {
		cfg.Log.Format = *o.LogFormat
	}
	if o.Verbose != nil {
		cfg.Log.Verbose = *o.Verbose
	}
}
