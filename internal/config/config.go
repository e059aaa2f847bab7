// Package config loads tracefood settings from an optional YAML file, an
// optional .env file and TRACEFOOD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tracefood/internal/blob"
	"tracefood/internal/core"
	"tracefood/internal/settlement"
	"tracefood/pkg/domain"
)

// DefaultPath is read when Load receives an empty path. It may be absent.
const DefaultPath = "configs/tracefood.yaml"

// EnvPrefix namespaces environment overrides, e.g. TRACEFOOD_STORAGE_DRIVER.
const EnvPrefix = "TRACEFOOD"

type Config struct {
	Server struct {
		Addr               string        `mapstructure:"addr"`
		CorsAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
		ReadTimeout        time.Duration `mapstructure:"read_timeout"`
		WriteTimeout       time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Storage struct {
		Driver      string `mapstructure:"driver"`
		SQLitePath  string `mapstructure:"sqlite_path"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
		BadgerDir   string `mapstructure:"badger_dir"`
	} `mapstructure:"storage"`

	Blob struct {
		Driver string `mapstructure:"driver"`
		FSRoot string `mapstructure:"fs_root"`
		Prefix string `mapstructure:"prefix"`
		S3     struct {
			Bucket          string `mapstructure:"bucket"`
			Region          string `mapstructure:"region"`
			Endpoint        string `mapstructure:"endpoint"`
			AccessKeyID     string `mapstructure:"access_key_id"`
			SecretAccessKey string `mapstructure:"secret_access_key"`
			PathStyle       bool   `mapstructure:"path_style"`
		} `mapstructure:"s3"`
	} `mapstructure:"blob"`

	Auth struct {
		Secret   string        `mapstructure:"secret"`
		Issuer   string        `mapstructure:"issuer"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Settlement struct {
		Sink      string        `mapstructure:"sink"`
		QueueSize int           `mapstructure:"queue_size"`
		Attempts  int           `mapstructure:"attempts"`
		Backoff   time.Duration `mapstructure:"backoff"`
		QueueKey  string        `mapstructure:"queue_key"`
	} `mapstructure:"settlement"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Payout struct {
		Amount string `mapstructure:"amount"`
	} `mapstructure:"payout"`

	Log struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "tracefood.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.badger_dir", "")

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "./snapshots")
	v.SetDefault("blob.prefix", "snapshots/")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.path_style", false)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "tracefood")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("settlement.sink", string(settlement.SinkLedger))
	v.SetDefault("settlement.queue_size", settlement.DefaultQueueSize)
	v.SetDefault("settlement.attempts", 3)
	v.SetDefault("settlement.backoff", 500*time.Millisecond)
	v.SetDefault("settlement.queue_key", settlement.DefaultQueueKey)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("payout.amount", domain.DefaultPayoutYocto)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// Load reads configuration. An empty path tries DefaultPath and tolerates its
// absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	optional := path == ""
	if optional {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !optional || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers and malformed values.
func (c *Config) Validate() error {
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres, core.StorageBadger:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	switch settlement.Sink(c.Settlement.Sink) {
	case settlement.SinkLedger, settlement.SinkRedis, settlement.SinkLog:
	default:
		return fmt.Errorf("settlement.sink: unknown sink %q", c.Settlement.Sink)
	}
	if _, err := c.PayoutAmount(); err != nil {
		return fmt.Errorf("payout.amount: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// PayoutAmount parses the configured originator payout.
func (c *Config) PayoutAmount() (domain.Amount, error) {
	return domain.ParseAmount(c.Payout.Amount)
}

// StorageConfig maps the storage section onto the core backend selector.
func (c *Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		BadgerDir:   c.Storage.BadgerDir,
	}
}

// BlobConfig maps the blob section onto the archive backend selector.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// SettlementConfig maps the settlement and redis sections.
func (c *Config) SettlementConfig() settlement.Config {
	return settlement.Config{
		Sink:      settlement.Sink(c.Settlement.Sink),
		QueueSize: c.Settlement.QueueSize,
		Attempts:  c.Settlement.Attempts,
		Backoff:   c.Settlement.Backoff,
		QueueKey:  c.Settlement.QueueKey,
		Redis: settlement.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
	}
}
