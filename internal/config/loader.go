package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WIRERELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("WIRERELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	s := cfg.Server
	v.SetDefault("server.host", s.Host)
	v.SetDefault("server.port", s.Port)
	v.SetDefault("server.http_addr", s.HTTPAddr)
	v.SetDefault("server.max_frame_bytes", s.MaxFrameBytes)
	v.SetDefault("server.bus_capacity", s.BusCapacity)
	v.SetDefault("server.require_uuid", s.RequireUUID)
	v.SetDefault("server.write_timeout", s.WriteTimeout)
	v.SetDefault("server.read_header_timeout", s.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", s.ShutdownTimeout)
	v.SetDefault("server.persist_queue", s.PersistQueue)
	v.SetDefault("server.attachments_dir", s.AttachmentsDir)
	v.SetDefault("server.database.driver", s.Database.Driver)
	v.SetDefault("server.database.dsn", s.Database.DSN)

	c := cfg.Client
	v.SetDefault("client.host", c.Host)
	v.SetDefault("client.port", c.Port)
	v.SetDefault("client.identifier", c.Identifier)
	v.SetDefault("client.transport", c.Transport)
	v.SetDefault("client.ws_path", c.WSPath)
	v.SetDefault("client.connect_timeout", c.ConnectTimeout)
	v.SetDefault("client.auth_timeout", c.AuthTimeout)
	v.SetDefault("client.retry_interval", c.RetryInterval)
	v.SetDefault("client.retry_budget", c.RetryBudget)
	v.SetDefault("client.retry_multiplier", c.RetryMultiplier)
	v.SetDefault("client.max_retry_interval", c.MaxRetryInterval)
	v.SetDefault("client.downloads_dir", c.DownloadsDir)
	v.SetDefault("client.max_frame_bytes", c.MaxFrameBytes)
}
