package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "PMXM_CONFIG"

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"procmux.yaml",
	"procmux.yml",
	"/etc/procmux/config.yaml",
	"/etc/procmux/config.yml",
}

// Config is the full runtime configuration, loaded in layers: built-in
// defaults, then an optional YAML file, then PMXM_* environment variables.
type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Storage StorageConfig `koanf:"storage"`
	Probe   ProbeConfig   `koanf:"probe"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// BackendConfig describes the backend executable being managed.
type BackendConfig struct {
	// Command is the argv of the backend executable.
	Command []string `koanf:"command"`
	// BaseURLPrefix is prepended to the group identity to form the
	// backend's base path.
	BaseURLPrefix string `koanf:"base_url_prefix"`
}

// StorageConfig locates the on-disk reference records.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// ProbeConfig bounds the readiness probe.
type ProbeConfig struct {
	Attempts uint64        `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`
}

// ServerConfig configures the manager daemon.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// AuthToken protects the daemon's own endpoints. Minted at startup
	// when empty.
	AuthToken string `koanf:"auth_token"`
	// ParentCtx is the id of the process whose lifetime bounds the
	// daemon's. Defaults to the daemon's parent process.
	ParentCtx string `koanf:"parent_ctx"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	dataDir := ".procmux/servers"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".procmux", "servers")
	}
	return &Config{
		Backend: BackendConfig{
			Command:       nil,
			BaseURLPrefix: "/backend/",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Probe: ProbeConfig{
			Attempts: 7,
			Backoff:  500 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			AuthToken:       "",
			ParentCtx:       "",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and normalizes the base URL prefix.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Probe.Attempts < 1 {
		return fmt.Errorf("probe.attempts must be at least 1, got %d", c.Probe.Attempts)
	}
	if c.Probe.Backoff <= 0 {
		return fmt.Errorf("probe.backoff must be positive, got %s", c.Probe.Backoff)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Backend.BaseURLPrefix, "/") {
		return fmt.Errorf("backend.base_url_prefix must start with /, got %q", c.Backend.BaseURLPrefix)
	}
	if !strings.HasSuffix(c.Backend.BaseURLPrefix, "/") {
		c.Backend.BaseURLPrefix += "/"
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are config paths whose env values arrive as
// comma-separated strings.
var sliceConfigPaths = []string{
	"backend.command",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps PMXM_* environment variables to config paths.
// Unmapped variables are dropped so unrelated environment entries cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"PMXM_BACKEND_COMMAND":  "backend.command",
		"PMXM_BASE_URL_PREFIX":  "backend.base_url_prefix",
		"PMXM_DATA_DIR":         "storage.data_dir",
		"PMXM_PROBE_ATTEMPTS":   "probe.attempts",
		"PMXM_PROBE_BACKOFF":    "probe.backoff",
		"PMXM_HOST":             "server.host",
		"PMXM_PORT":             "server.port",
		"PMXM_AUTH_TOKEN":       "server.auth_token",
		"PMXM_PARENT_CTX":       "server.parent_ctx",
		"PMXM_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
		"PMXM_LOG_LEVEL":        "logging.level",
		"PMXM_LOG_FORMAT":       "logging.format",
	}
	return envMappings[key]
}
