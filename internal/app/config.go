package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the runtime configuration for the sync agent.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Push       PushConfig       `mapstructure:"push"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// BackendConfig points at the incident API.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`

	// Origin is the application origin used to validate notification
	// navigation targets.
	Origin string `mapstructure:"origin"`
}

// RealtimeConfig tunes the event stream subscriptions.
type RealtimeConfig struct {
	URL         string        `mapstructure:"url"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// StorageConfig locates the local persistence database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// PushConfig configures the platform push channel.
type PushConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServerKey   string `mapstructure:"server_key"`
	DeviceToken string `mapstructure:"device_token"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// MonitoringConfig enables the metrics endpoint.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics exposure.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SAFEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the agent cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("config: backend.base_url is required")
	}
	if strings.TrimSpace(c.Realtime.URL) == "" {
		return errors.New("config: realtime.url is required")
	}
	if c.Realtime.MaxAttempts <= 0 {
		return errors.New("config: realtime.max_attempts must be positive")
	}
	if c.Realtime.BaseDelay <= 0 || c.Realtime.MaxDelay < c.Realtime.BaseDelay {
		return errors.New("config: realtime delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Push.Enabled && strings.TrimSpace(c.Push.ServerKey) == "" {
		return errors.New("config: push.server_key is required when push is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.origin", "")

	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.base_delay", "1s")
	v.SetDefault("realtime.max_delay", "30s")
	v.SetDefault("realtime.max_attempts", 8)

	v.SetDefault("storage.path", "./data/safeguard.sqlite")

	v.SetDefault("push.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.address", "127.0.0.1:9190")
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
