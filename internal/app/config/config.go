package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	API       APIConfig       `mapstructure:"api"`
	Views     ViewsConfig     `mapstructure:"views"`
	Rendering RenderingConfig `mapstructure:"rendering"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dev       DevConfig       `mapstructure:"dev"`
	Plugins   PluginsConfig   `mapstructure:"plugins"`
}

type AppConfig struct {
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Host string `mapstructure:"host"`
}

// APIConfig describes the remote users API the dashboard reads from.
type APIConfig struct {
	BaseURL          string `mapstructure:"baseUrl" validate:"required,url"`
	TimeoutSec       int    `mapstructure:"timeoutSec" validate:"min=1"`
	UserAgent        string `mapstructure:"userAgent"`
	CollapseRequests bool   `mapstructure:"collapseRequests"`
}

// ViewsConfig bounds the per-page views. Max is the number of views kept
// mounted at once; opening one more evicts the least recently seen.
type ViewsConfig struct {
	IdleTimeoutSec  int `mapstructure:"idleTimeoutSec" validate:"min=1"`
	ReapIntervalSec int `mapstructure:"reapIntervalSec" validate:"min=1"`
	Max             int `mapstructure:"max" validate:"min=1"`
}

type RenderingConfig struct {
	Locale string `mapstructure:"locale" validate:"required"`
	Title  string `mapstructure:"title"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type DevConfig struct {
	Watch []string `mapstructure:"watch"`
}

type PluginsConfig struct {
	Enabled []string                          `mapstructure:"enabled"`
	Config  map[string]map[string]interface{} `mapstructure:"config"`
}

// Option adjusts the viper instance before the config is read. Binaries use
// it to supply defaults that are decided at build time.
type Option func(v *viper.Viper)

// WithAPIBaseURL sets the default for api.baseUrl. An explicit value in the
// config file or environment still wins.
func WithAPIBaseURL(url string) Option {
	return func(v *viper.Viper) {
		if url != "" {
			v.SetDefault("api.baseUrl", url)
		}
	}
}

func Load(configPath string, opts ...Option) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("userboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/userboard")
	}

	v.SetEnvPrefix("USERBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if envPath := os.Getenv("USERBOARD_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading env config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 3000)
	v.SetDefault("app.host", "0.0.0.0")

	v.SetDefault("api.baseUrl", "http://localhost:8080")
	v.SetDefault("api.timeoutSec", 10)
	v.SetDefault("api.userAgent", "userboard")
	v.SetDefault("api.collapseRequests", true)

	v.SetDefault("views.idleTimeoutSec", 300)
	v.SetDefault("views.reapIntervalSec", 60)
	v.SetDefault("views.max", 1000)

	v.SetDefault("rendering.locale", "en-US")
	v.SetDefault("rendering.title", "User Management")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dev.watch", []string{"cmd", "internal", "public"})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints after defaults and overrides are merged.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Views.IdleTimeoutSec) * time.Second
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Views.ReapIntervalSec) * time.Second
}
