package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ListenAddr        string        `env:"LISTEN_ADDR,default=:3002"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	StorageType       string        `env:"STORAGE_TYPE,default=memory"`
	LocalStoragePath  string        `env:"LOCAL_STORAGE_PATH,default=./data"`
	DataSourceName    string        `env:"DATA_SOURCE_NAME,default=notes.db"`
	BadgerPath        string        `env:"BADGER_PATH,default=./data/badger"`
	S3BucketName      string        `env:"S3_BUCKET_NAME"`
	S3Prefix          string        `env:"S3_PREFIX,default=notes"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT,default=10s"`
	MaxHTTPBufferSize int64         `env:"MAX_HTTP_BUFFER_SIZE,default=5000000"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=1048576"`
}

// Load reads an optional .env file and then the process environment.
// ALLOWED_ORIGINS is pipe separated.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StorageType {
	case "", "memory", "filesystem", "sqlite", "badger":
	case "s3":
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.MaxContentLength < 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must not be negative")
	}
	return nil
}
