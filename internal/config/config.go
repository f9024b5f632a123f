package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

type Config struct {
	Server      Server      `yaml:"server"`
	Log         Log         `yaml:"log"`
	Retry       Retry       `yaml:"retry"`
	Idempotency Idempotency `yaml:"idempotency"`
}

type Server struct {
	Listen          string  `yaml:"listen" env:"CRM_LISTEN" env-default:":8000"`
	StorageDriver   string  `yaml:"storageDriver" env:"CRM_STORAGE_DRIVER" env-default:"memory"` // postgres, badger, memory
	PostgresDsn     string  `yaml:"postgresDsn" env:"CRM_POSTGRES_DSN"`
	BadgerPath      string  `yaml:"badgerPath" env:"CRM_BADGER_PATH"`
	RedisAddr       string  `yaml:"redisAddr" env:"CRM_REDIS_ADDR"`
	RedisPassword   string  `yaml:"-" env:"CRM_REDIS_PASSWORD"`
	RedisDB         int     `yaml:"redisDB" env:"CRM_REDIS_DB"`
	MemcachedAddr   string  `yaml:"memcachedAddr" env:"CRM_MEMCACHED_ADDR"`
	EnableTrace     bool    `yaml:"enableTrace" env:"CRM_ENABLE_TRACE"`
	TraceEndpoint   string  `yaml:"traceEndpoint" env:"CRM_TRACE_ENDPOINT" env-default:"localhost:4318"`
	TraceSampleRate float64 `yaml:"traceSampleRate" env:"CRM_TRACE_SAMPLE_RATE" env-default:"1"`
}

type Log struct {
	Level  string `yaml:"level" env:"CRM_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"CRM_LOG_FORMAT" env-default:"json"` // json, console
}

type Retry struct {
	MaxRetries   int           `yaml:"maxRetries" env:"CRM_RETRY_MAX" env-default:"4"`
	InitialDelay time.Duration `yaml:"initialDelay" env:"CRM_RETRY_INITIAL_DELAY" env-default:"20ms"`
	MaxDelay     time.Duration `yaml:"maxDelay" env:"CRM_RETRY_MAX_DELAY" env-default:"500ms"`
}

// Idempotency replay is on unless disabled. Zero values are replaced by
// defaults, so the switch is phrased negatively.
type Idempotency struct {
	Disabled bool          `yaml:"disabled" env:"CRM_IDEMPOTENCY_DISABLED"`
	TTL      time.Duration `yaml:"ttl" env:"CRM_IDEMPOTENCY_TTL" env-default:"24h"`
}

// Load decodes the yaml file at path, if any, then applies environment
// overrides and defaults.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	switch c.Server.StorageDriver {
	case DriverPostgres:
		if c.Server.PostgresDsn == "" {
			return fmt.Errorf("server.postgresDsn is required for the postgres driver")
		}
	case DriverBadger:
		if c.Server.BadgerPath == "" {
			return fmt.Errorf("server.badgerPath is required for the badger driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Server.StorageDriver)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.maxRetries must not be negative")
	}
	if !c.Idempotency.Disabled && c.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency.ttl must be positive")
	}
	return nil
}

func (r Retry) Config() *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = r.MaxRetries
	if r.InitialDelay > 0 {
		cfg.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		cfg.MaxDelay = r.MaxDelay
	}
	return cfg
}
