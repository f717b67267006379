package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Broker     BrokerConfig     `mapstructure:"broker" validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker" validate:"required"`
	Relay      RelayConfig      `mapstructure:"relay" validate:"required"`
	LangDetect LangDetectConfig `mapstructure:"langdetect" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
	// RunMigrations applies pending schema migrations when the server starts.
	RunMigrations bool `mapstructure:"run_migrations"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" validate:"required,url"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// BrokerConfig configures the RabbitMQ connection and queue topology.
type BrokerConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	Queue           string        `mapstructure:"queue" validate:"required"`
	DeadLetterQueue string        `mapstructure:"dead_letter_queue" validate:"required"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"required,gt=0"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay" validate:"required,gt=0"`
	Prefetch        int           `mapstructure:"prefetch" validate:"gte=0"`
}

// WorkerConfig configures the consumer process.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0"`
	// MaxAttempts bounds how often a message is retried after a transient
	// failure before it is dead-lettered.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`
	// RetryBaseDelay is the wait before the first retry; it doubles per
	// attempt up to RetryMaxDelay.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`
	// ResultWriter selects how results are persisted: "store" writes to the
	// database directly, "http" reports them to the API server.
	ResultWriter string        `mapstructure:"result_writer" validate:"required,oneof=store http"`
	APIBaseURL   string        `mapstructure:"api_base_url" validate:"omitempty,url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	// MetricsPort is where the worker serves /metrics. Zero disables it.
	MetricsPort int `mapstructure:"metrics_port" validate:"gte=0,lt=65536"`
}

// RelayConfig configures the outbox relay that republishes unsent messages.
type RelayConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Age       time.Duration `mapstructure:"age" validate:"gte=0"`
	BatchSize int           `mapstructure:"batch_size" validate:"gt=0"`
	// StuckAge is how long a task may stay processing after its last message
	// was published before the relay enqueues it again. Zero disables the sweep.
	StuckAge time.Duration `mapstructure:"stuck_age" validate:"gte=0"`
	// MaxRequeues bounds how often the sweep enqueues the same task.
	MaxRequeues int `mapstructure:"max_requeues" validate:"gte=0"`
}

// LangDetectConfig selects and configures the language classifier.
type LangDetectConfig struct {
	Provider     string `mapstructure:"provider" validate:"required,oneof=lingua gemini"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	Model        string `mapstructure:"model" validate:"required"`
}
