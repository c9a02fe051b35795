package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Intake   IntakeConfig   `yaml:"intake" mapstructure:"intake"`
	Backfill BackfillConfig `yaml:"backfill" mapstructure:"backfill"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "postgres" or
// "sqlite"; pool sizing only applies to postgres.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns     int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinIdleConns int32  `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// IntakeConfig configures lead intake. SourceRules points at an optional
// YAML file of lead source aliases.
type IntakeConfig struct {
	SourceRules string `yaml:"source_rules" mapstructure:"source_rules"`
}

// BackfillConfig configures legacy-table backfill runs.
type BackfillConfig struct {
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IDENTITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_idle_conns", 2)
	v.SetDefault("backfill.rate_limit", 0)
	v.SetDefault("backfill.concurrency", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
