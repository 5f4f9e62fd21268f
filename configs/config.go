package configs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "sqlgenmcp"

	// DefaultConfigFile is read when SQLGENMCP_CONFIG_FILE is unset. It may be absent.
	DefaultConfigFile = "configs/sqlgenmcp.yaml"

	DefaultServerName    = "sqlgenmcp"
	DefaultServerVersion = "0.1.0"
)

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	Server struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"server"`
	Instructions string `yaml:"instructions"`
}

// Config holds the final application configuration, merged from file and environment variables.
// Fields are loaded from environment variables with the prefix "SQLGENMCP_", overriding file settings.
type Config struct {
	ConfigFilePath string `envconfig:"CONFIG_FILE" default:"configs/sqlgenmcp.yaml"`

	// Server identity. No envconfig defaults here so that file values survive the
	// second envconfig pass; defaults are applied after merging.
	ServerName    string `envconfig:"SERVER_NAME"`
	ServerVersion string `envconfig:"SERVER_VERSION"`

	// Instructions is only settable from the config file.
	Instructions string `ignored:"true"`

	ListenAddr               string        `envconfig:"LISTEN_ADDR" default:":8080"`
	AdminAddr                string        `envconfig:"ADMIN_ADDR" default:":8081"`
	ShutdownTimeout          time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	LogLevel                 string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile                  string        `envconfig:"LOG_FILE" default:"/tmp/sqlgenmcp.log"`
	OtelExporterOtlpEndpoint string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool          `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Load reads an optional .env file from the working directory, then loads the configuration.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration first from environment variables (to get the file path),
// then from the YAML file, and finally re-applies environment variables as overrides.
func LoadFromEnv() (*Config, error) {
	var initialCfg Config
	if err := envconfig.Process(envPrefix, &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	fileCfg, err := readFileConfig(initialCfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}

	finalCfg := initialCfg
	finalCfg.ServerName = fileCfg.Server.Name
	finalCfg.ServerVersion = fileCfg.Server.Version
	finalCfg.Instructions = fileCfg.Instructions

	if err := envconfig.Process(envPrefix, &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}

	if finalCfg.ServerName == "" {
		finalCfg.ServerName = DefaultServerName
	}
	if finalCfg.ServerVersion == "" {
		finalCfg.ServerVersion = DefaultServerVersion
	}
	return &finalCfg, nil
}

// readFileConfig parses the YAML file at path. A missing file is only tolerated
// at the default location.
func readFileConfig(path string) (FileConfig, error) {
	var fileCfg FileConfig
	if path == "" {
		slog.Info("No config file path specified (SQLGENMCP_CONFIG_FILE), using defaults/env vars only.")
		return fileCfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultConfigFile {
			slog.Debug("Default config file not found, using defaults/env vars only.", "path", path)
			return fileCfg, nil
		}
		return fileCfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fileCfg, fmt.Errorf("failed to unmarshal config file '%s': %w", path, err)
	}
	slog.Info("Loaded configuration from file.", "path", path)
	return fileCfg, nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
