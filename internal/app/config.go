package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// RulesPatterns are doublestar patterns or directories of HCL rule files.
	RulesPatterns []string `toml:"rules"`

	LogFormat string `toml:"log_format"`
	LogLevel  string `toml:"log_level"`

	// JournalPath enables the SQLite commit journal when set.
	JournalPath string `toml:"journal"`

	HostURL            string        `toml:"host_url"`
	HostNamespace      string        `toml:"host_namespace"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
	ConnectTimeout     time.Duration `toml:"connect_timeout"`
	// ScenePath is a YAML scene loaded into the store before serving a host.
	ScenePath string `toml:"scene"`

	// FilterInvalidPorts hides invalid connection candidates instead of
	// marking them.
	FilterInvalidPorts bool `toml:"filter_invalid_ports"`
	HealthcheckPort    int  `toml:"healthcheck_port"`
}

// DefaultConfig returns the configuration used when neither a file nor a
// flag says otherwise.
func DefaultConfig() Config {
	return Config{
		LogFormat:      "text",
		LogLevel:       "info",
		ConnectTimeout: 15 * time.Second,
	}
}

// LoadConfigFile decodes a TOML file over the defaults. Unknown keys are
// rejected.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return cfg, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.RulesPatterns) == 0 {
		return nil, errors.New("at least one rules path is required")
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.ConnectTimeout < 0 {
		return nil, fmt.Errorf("invalid connect timeout %v", cfg.ConnectTimeout)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
