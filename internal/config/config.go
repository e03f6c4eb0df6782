package config

import (
	"errors"
	"fmt"
	"time"

	"baqup/internal/logger"
	"baqup/internal/model"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// Config is the controller's top-level YAML configuration.
type Config struct {
	Docker     DockerConfig     `mapstructure:"docker"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	GC         GCConfig         `mapstructure:"gc"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
}

// DockerConfig selects the Docker daemon to talk to. An empty host uses
// the standard environment (DOCKER_HOST etc.).
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultsConfig seeds the resolver chain: per-name schedule defaults and
// the fallback schedule/compress applied to targets.
type DefaultsConfig struct {
	Schedules map[string]ScheduleDefault `mapstructure:"schedules"`
	Target    TargetDefaults             `mapstructure:"target"`
}

type ScheduleDefault struct {
	Cron      string `mapstructure:"cron"`
	Retention int    `mapstructure:"retention"`
}

type TargetDefaults struct {
	Schedule string `mapstructure:"schedule"`
	Compress bool   `mapstructure:"compress"`
}

// StorageConfig selects and configures the backup destination.
type StorageConfig struct {
	Dest  string      `mapstructure:"dest"`
	Local LocalConfig `mapstructure:"local"`
	S3    S3Config    `mapstructure:"s3"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type WebhookConfig struct {
	URL        string        `mapstructure:"url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type GCConfig struct {
	Cron   string `mapstructure:"cron"`
	DryRun bool   `mapstructure:"dry_run"`
}

type EncryptionConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("reconcile.interval", 10*time.Second)
	v.SetDefault("defaults.target.schedule", "daily")
	v.SetDefault("defaults.target.compress", true)
	v.SetDefault("storage.dest", "local")
	v.SetDefault("storage.local.path", "/backups")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("gc.cron", "0 4 * * *")
}

// Load reads the controller configuration from path. An empty path yields
// a configuration built entirely from defaults and BAQUP_* environment
// variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("baqup")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrLoadConfig, err)
	}
	return &cfg, nil
}

// DefaultSchedules converts the configured schedule defaults into the
// model's schedule set. Entries without a cron expression are skipped with
// a warning; a missing or non-positive retention falls back to 7. Returns
// nil when no valid defaults are configured, letting the discovery layer
// fall back to the built-in set.
func (c *Config) DefaultSchedules() map[string]model.ScheduleConfig {
	if len(c.Defaults.Schedules) == 0 {
		return nil
	}

	schedules := make(map[string]model.ScheduleConfig, len(c.Defaults.Schedules))
	for name, def := range c.Defaults.Schedules {
		if def.Cron == "" {
			logger.Log.Warn("Skipping default schedule without cron expression",
				zap.String("schedule", name),
			)
			continue
		}
		retention := def.Retention
		if retention <= 0 {
			retention = 7
		}
		schedules[name] = model.ScheduleConfig{Name: name, Cron: def.Cron, Retention: retention}
	}
	if len(schedules) == 0 {
		return nil
	}
	return schedules
}
