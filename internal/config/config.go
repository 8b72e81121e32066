package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PathsConfig struct {
	Uploads string
	Results string
	Static  string
}

// ModelConfig describes how the talking-head model is launched.
type ModelConfig struct {
	Python        string
	Script        string
	WorkDir       string
	CheckpointDir string
	ConfigDir     string
	Enhancer      string
	Timeout       time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	Group        string
	Consumer     string
	ResultPrefix string
	ResultTTL    time.Duration
}

type QueueConfig struct {
	ClaimInterval time.Duration
	Contract      string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	JWTSecret string
}

type CleanupConfig struct {
	Schedule        string
	UploadMaxAge    time.Duration
	ResultRetention time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	Logging          LoggingConfig
	HTTP             HTTPConfig
	Paths            PathsConfig
	Model            ModelConfig
	Redis            RedisConfig
	Queues           QueueConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Cleanup          CleanupConfig
	AllowCORSOrigins []string
}

// Load reads <name>.yaml from the usual config locations and overlays
// SADTALKER_* environment variables on top of the defaults.
func Load(name string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("SADTALKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Queues.Contract {
	case ContractRaw, ContractBase64:
	default:
		return fmt.Errorf("queues.contract must be %q or %q, got %q", ContractRaw, ContractBase64, c.Queues.Contract)
	}
	if c.Paths.Uploads == "" || c.Paths.Results == "" {
		return fmt.Errorf("paths.uploads and paths.results are required")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	return nil
}

// Queue payload contracts understood by the worker.
const (
	ContractRaw    = "raw"
	ContractBase64 = "base64"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logging.level", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.readtimeout", "30s")
	// generation blocks the request for the whole model run
	v.SetDefault("http.writetimeout", "0s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("paths.uploads", "uploads")
	v.SetDefault("paths.results", "results")
	v.SetDefault("paths.static", "static")

	v.SetDefault("model.python", "python")
	v.SetDefault("model.script", "inference.py")
	v.SetDefault("model.workdir", ".")
	v.SetDefault("model.checkpointdir", "checkpoints")
	v.SetDefault("model.configdir", "src/config")
	v.SetDefault("model.enhancer", "gfpgan")
	v.SetDefault("model.timeout", "0s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "sadtalker:jobs")
	v.SetDefault("redis.group", "sadtalker-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.resultprefix", "sadtalker:result")
	v.SetDefault("redis.resultttl", "24h")

	v.SetDefault("queues.claiminterval", "10m")
	v.SetDefault("queues.contract", ContractBase64)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.bucket", "sadtalker-videos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("cleanup.schedule", "0 */15 * * * *")
	v.SetDefault("cleanup.uploadmaxage", "6h")
	v.SetDefault("cleanup.resultretention", "0s")
}
