package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
)

// Notifier drivers.
const (
	NotifierMemory = "memory"
	NotifierNATS   = "nats"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Identity IdentityConfig `mapstructure:"identity"`
	Console  ConsoleConfig  `mapstructure:"console"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type StoreConfig struct {
	// PollInterval is how often subscriptions re-read when no change signal
	// arrives. Zero disables polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type NotifierConfig struct {
	Driver        string `mapstructure:"driver"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type IdentityConfig struct {
	TechnicianID string `mapstructure:"technician_id"`
}

type ConsoleConfig struct {
	AutoStatusInterval time.Duration `mapstructure:"auto_status_interval"`
	LogFile            string        `mapstructure:"log_file"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notifier", cfg.Notifier.Driver),
	)

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Store.PollInterval < 0 {
		return errors.New("store.poll_interval must not be negative")
	}
	c.Notifier.Driver = strings.ToLower(strings.TrimSpace(c.Notifier.Driver))
	switch c.Notifier.Driver {
	case NotifierMemory:
	case NotifierNATS:
		if strings.TrimSpace(c.Notifier.NATSURL) == "" {
			return errors.New("notifier.nats_url is required for the nats driver")
		}
	default:
		return errors.New("notifier.driver must be memory or nats")
	}
	c.Identity.TechnicianID = strings.TrimSpace(c.Identity.TechnicianID)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "crms")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".crms/state/crms.sqlite")
	v.SetDefault("store.poll_interval", 2*time.Second)
	v.SetDefault("notifier.driver", NotifierMemory)
	v.SetDefault("notifier.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("notifier.subject_prefix", "crms.changes")
	v.SetDefault("identity.technician_id", "")
	v.SetDefault("console.auto_status_interval", time.Minute)
	v.SetDefault("console.log_file", ".crms/logs/console.log")
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
}
