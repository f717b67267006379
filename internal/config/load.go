package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so server.port is
// read from TEXTPROC_SERVER_PORT.
const EnvPrefix = "TEXTPROC"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are unknown to Unmarshal unless bound explicitly.
	for _, key := range []string{"database.url", "broker.url", "langdetect.gemini_api_key", "worker.api_base_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.run_migrations", true)

	v.SetDefault("database.max_conns", 10)

	v.SetDefault("broker.queue", "text_tasks")
	v.SetDefault("broker.dead_letter_queue", "text_tasks.dead")
	v.SetDefault("broker.connect_attempts", 5)
	v.SetDefault("broker.connect_delay", 5*time.Second)
	v.SetDefault("broker.prefetch", 10)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.retry_base_delay", 2*time.Second)
	v.SetDefault("worker.retry_max_delay", time.Minute)
	v.SetDefault("worker.metrics_port", 9091)
	v.SetDefault("worker.result_writer", "store")
	v.SetDefault("worker.http_timeout", 10*time.Second)

	v.SetDefault("relay.enabled", true)
	v.SetDefault("relay.interval", 30*time.Second)
	v.SetDefault("relay.age", time.Minute)
	v.SetDefault("relay.batch_size", 100)
	v.SetDefault("relay.stuck_age", 15*time.Minute)
	v.SetDefault("relay.max_requeues", 3)

	v.SetDefault("langdetect.provider", "lingua")
	v.SetDefault("langdetect.model", "gemini-2.0-flash")
}

// Validate checks struct tags and the rules that span more than one field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Worker.ResultWriter == "http" && c.Worker.APIBaseURL == "" {
		return errors.New("config validation failed: worker.api_base_url is required when worker.result_writer is http")
	}
	return nil
}
