package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int  `mapstructure:"port"`
		CORS bool `mapstructure:"cors"`
	} `mapstructure:"running"`
	Store struct {
		// mysql or sqlite
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`
	Redis struct {
		// one address uses a single client, several a cluster client
		Addrs    []string      `mapstructure:"addrs"`
		Password string        `mapstructure:"password"`
		LockTTL  time.Duration `mapstructure:"lockTTL"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers     []string      `mapstructure:"brokers"`
		Topic       string        `mapstructure:"topic"`
		QueueSize   int           `mapstructure:"queueSize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxRetry"`
		BaseBackoff time.Duration `mapstructure:"baseBackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
		MaxInFlight int           `mapstructure:"maxInFlight"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Editor struct {
		ScrollToleranceMs  int64         `mapstructure:"scrollToleranceMs"`
		CodesVisibleOnLoad bool          `mapstructure:"codesVisibleOnLoad"`
		PlayheadTTL        time.Duration `mapstructure:"playheadTTL"`
	} `mapstructure:"editor"`
	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8082)
	v.SetDefault("running.cors", false)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "transcripts.db")

	v.SetDefault("redis.lockTTL", "10m")

	v.SetDefault("kafka.topic", "transcript-events")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.baseBackoff", "50ms")
	v.SetDefault("kafka.maxBackoff", "1s")
	v.SetDefault("kafka.maxInFlight", 100)

	v.SetDefault("auth.jwtSecret", "dev-secret")

	v.SetDefault("editor.scrollToleranceMs", 2)
	v.SetDefault("editor.codesVisibleOnLoad", false)
	v.SetDefault("editor.playheadTTL", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads name (without extension) from the first of paths that has it,
// falling back to ./backend/config, ./config and the working directory. A
// missing file leaves the defaults; TRANSCRIPT_* environment variables
// override both.
func Load(name string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRANSCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
