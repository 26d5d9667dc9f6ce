package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Mail       MailConfig       `yaml:"mail"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Commands   CommandsConfig   `yaml:"commands"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// MonitorConfig drives the periodic fleet sweep and the liveness policy.
// Every status-deriving code path consumes the same two thresholds; no call
// site re-specifies them as literals.
type MonitorConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	IntervalSeconds         int           `yaml:"interval_seconds"`
	Interval                time.Duration `yaml:"-"` // Ignored by YAML parser
	OfflineAfterMinutes     int           `yaml:"offline_after_minutes"`
	CriticalAfterMinutes    int           `yaml:"critical_after_minutes"`
	CleaningOverdueDays     int           `yaml:"cleaning_overdue_days"`
	TemperatureThreshold    float64       `yaml:"temperature_threshold"`
	MaxConcurrency          int           `yaml:"max_concurrency"`
	MachineTimeoutSeconds   int           `yaml:"machine_timeout_seconds"`
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Provider string     `yaml:"provider"` // simulation, smtp or http
	From     string     `yaml:"from"`
	SMTP     SMTPConfig `yaml:"smtp"`
	HTTP     HTTPMail   `yaml:"http"`
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HTTPMail holds the HTTP mail provider endpoint.
type HTTPMail struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the push notification worker
// pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// GatewayConfig points at the device gateway that forwards commands to
// physical controllers. Optional; commands stay queued when unset.
type GatewayConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CommandsConfig drives the command timeout sweep.
type CommandsConfig struct {
	SweepIntervalSeconds  int `yaml:"sweep_interval_seconds"`
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
}

// SimulatorConfig gates the development-only device simulator. It is wired
// in from main by composition; production configs simply leave it disabled.
type SimulatorConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with working defaults. Exposed so tests
// can build configs without a YAML file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 120
	}
	cfg.Monitor.Interval = time.Duration(cfg.Monitor.IntervalSeconds) * time.Second

	if cfg.Monitor.OfflineAfterMinutes <= 0 {
		cfg.Monitor.OfflineAfterMinutes = 5
	}
	if cfg.Monitor.CriticalAfterMinutes <= 0 {
		cfg.Monitor.CriticalAfterMinutes = 30
	}
	if cfg.Monitor.CleaningOverdueDays <= 0 {
		cfg.Monitor.CleaningOverdueDays = 7
	}
	if cfg.Monitor.TemperatureThreshold <= 0 {
		cfg.Monitor.TemperatureThreshold = 5.0
	}
	if cfg.Monitor.MaxConcurrency <= 0 {
		cfg.Monitor.MaxConcurrency = 8
	}
	if cfg.Monitor.MachineTimeoutSeconds <= 0 {
		cfg.Monitor.MachineTimeoutSeconds = 5
	}

	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "simulation"
	}
	if cfg.Mail.HTTP.TimeoutSeconds <= 0 {
		cfg.Mail.HTTP.TimeoutSeconds = 10
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 10
	}

	if cfg.Commands.SweepIntervalSeconds <= 0 {
		cfg.Commands.SweepIntervalSeconds = 60
	}
	if cfg.Commands.DefaultTimeoutSeconds <= 0 {
		cfg.Commands.DefaultTimeoutSeconds = 300
	}

	if cfg.Simulator.IntervalSeconds <= 0 {
		cfg.Simulator.IntervalSeconds = 30
	}
}
