package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConf struct {
	Env            string `mapstructure:"env"`
	Port           int    `mapstructure:"port"`
	ShutdownSecond int    `mapstructure:"shutdown_seconds"`
	Timezone       string `mapstructure:"timezone"` // IANA name or "Local"
	PIN            string `mapstructure:"pin"`
}

type StorageConf struct {
	Backend   string `mapstructure:"backend"` // fs | s3 | gridfs
	Root      string `mapstructure:"root"`
	URLPrefix string `mapstructure:"url_prefix"`
}

type AWSConf struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type S3Conf struct {
	PublicRead bool `mapstructure:"public_read"`
	PresignTTL int  `mapstructure:"presign_ttl_seconds"`
}

type MongoConf struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Bucket   string `mapstructure:"bucket"`
}

type RedisConf struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	ListingTTL int    `mapstructure:"listing_ttl_seconds"`
}

type AuthConf struct {
	SessionSecret   string `mapstructure:"session_secret"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours"`
	RequireSession  bool   `mapstructure:"require_session"`
}

type UploadConf struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type RateLimitConf struct {
	PerMinute int `mapstructure:"per_minute"`
}

type BreakerConf struct {
	MaxFailures     int `mapstructure:"max_failures"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
}

type PresentConf struct {
	CountdownStepMS     int `mapstructure:"countdown_step_ms"`
	SlideshowIntervalMS int `mapstructure:"slideshow_interval_ms"`
}

type Config struct {
	App       AppConf       `mapstructure:"app"`
	Storage   StorageConf   `mapstructure:"storage"`
	AWS       AWSConf       `mapstructure:"aws"`
	S3        S3Conf        `mapstructure:"s3"`
	Mongo     MongoConf     `mapstructure:"mongodb"`
	Redis     RedisConf     `mapstructure:"redis"`
	Auth      AuthConf      `mapstructure:"auth"`
	Upload    UploadConf    `mapstructure:"upload"`
	RateLimit RateLimitConf `mapstructure:"ratelimit"`
	Breaker   BreakerConf   `mapstructure:"breaker"`
	Present   PresentConf   `mapstructure:"present"`
	Log       struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// derived
	ShutdownTimeout   time.Duration
	Location          *time.Location
	PresignTTL        time.Duration
	ListingTTL        time.Duration
	SessionTTL        time.Duration
	BreakerInterval   time.Duration
	BreakerTimeout    time.Duration
	CountdownStep     time.Duration
	SlideshowInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 3000)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.timezone", "Local")
	v.SetDefault("app.pin", "1234")
	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.url_prefix", "/uploads/")
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.bucket", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("s3.public_read", false)
	v.SetDefault("s3.presign_ttl_seconds", 600)
	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "tinytalk")
	v.SetDefault("mongodb.bucket", "media")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.listing_ttl_seconds", 60)
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl_hours", 12)
	v.SetDefault("auth.require_session", false)
	v.SetDefault("upload.max_bytes", int64(100<<20))
	v.SetDefault("ratelimit.per_minute", 120)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_seconds", 60)
	v.SetDefault("breaker.timeout_seconds", 30)
	v.SetDefault("present.countdown_step_ms", 800)
	v.SetDefault("present.slideshow_interval_ms", 4000)
	v.SetDefault("log.level", "info")
}

// Load reads an optional .env, then the optional config file at path, then
// environment overrides (app.pin <- APP_PIN).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.derive(); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) derive() error {
	loc, err := loadLocation(c.App.Timezone)
	if err != nil {
		return err
	}
	c.Location = loc
	c.ShutdownTimeout = seconds(c.App.ShutdownSecond)
	c.PresignTTL = seconds(c.S3.PresignTTL)
	c.ListingTTL = seconds(c.Redis.ListingTTL)
	c.SessionTTL = time.Duration(c.Auth.SessionTTLHours) * time.Hour
	c.BreakerInterval = seconds(c.Breaker.IntervalSeconds)
	c.BreakerTimeout = seconds(c.Breaker.TimeoutSeconds)
	c.CountdownStep = time.Duration(c.Present.CountdownStepMS) * time.Millisecond
	c.SlideshowInterval = time.Duration(c.Present.SlideshowIntervalMS) * time.Millisecond
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) Development() bool { return c.App.Env == "development" }

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	if c.App.PIN == "" {
		return errors.New("app.pin must not be empty")
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Root == "" {
			return errors.New("storage.root is required for the fs backend")
		}
	case "s3":
		if c.AWS.Region == "" || c.AWS.Bucket == "" {
			return errors.New("aws.region and aws.bucket are required for the s3 backend")
		}
	case "gridfs":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongodb.uri and mongodb.database are required for the gridfs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	if c.CountdownStep <= 0 || c.SlideshowInterval <= 0 {
		return errors.New("present timings must be positive")
	}
	return nil
}
