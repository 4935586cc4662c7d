package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type StorageConfig struct {
	Driver  string `mapstructure:"driver"` // postgres or memory
	DataDir string `mapstructure:"data_dir"`
}

type WorkerConfig struct {
	Backend     string        `mapstructure:"backend"` // pool or temporal
	Concurrency int           `mapstructure:"concurrency"`
	QueueSize   int           `mapstructure:"queue_size"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	CancelGrace time.Duration `mapstructure:"cancel_grace"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type RendererConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Container       string        `mapstructure:"container"`
	Command         string        `mapstructure:"command"`
	OutputExtension string        `mapstructure:"output_extension"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	JWTSecret   string         `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration  `mapstructure:"token_ttl"`
	LogLevel    string         `mapstructure:"log_level"`
	CORSOrigins []string       `mapstructure:"cors_origins"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	Renderer    RendererConfig `mapstructure:"renderer"`
}

// Load reads config.yaml from the current directory or ./config and exits on failure.
func Load() *Config {
	v := newViper()
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")

	cfg, err := read(v)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

// LoadFile reads the configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	return read(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ADSB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_port", "8080")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("worker.backend", "pool")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.job_timeout", 10*time.Minute)
	v.SetDefault("worker.cancel_grace", 5*time.Second)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "ADSB_REPORTING")
	v.SetDefault("renderer.enabled", false)
	v.SetDefault("renderer.container", "adsb-renderer")
	v.SetDefault("renderer.command", "fop -xml {{input}} -xsl /opt/reports/{{type}}.xsl -pdf {{output}}")
	v.SetDefault("renderer.output_extension", "pdf")
	v.SetDefault("renderer.timeout", 5*time.Minute)
	return v
}

func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret must be set in the config file")
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres storage driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Worker.Backend {
	case "pool", "temporal":
	default:
		return fmt.Errorf("unknown worker backend %q", c.Worker.Backend)
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 1
	}
	return nil
}
