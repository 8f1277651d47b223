package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerWriteTimeout is the API server's write timeout. Upstream calls must
// finish before it so the response can still be written.
const ServerWriteTimeout = 15 * time.Second

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Plaid     PlaidConfig     `yaml:"plaid"`
	TLS       TLSConfig       `yaml:"tls"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	Host         string   `yaml:"host"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	StaticDir    string   `yaml:"static_dir"`
}

// PlaidConfig holds the upstream aggregation API settings. ClientID and
// Secret are injected into every outbound request and never leave the server.
type PlaidConfig struct {
	BaseURL  string        `yaml:"base_url"`
	ClientID string        `yaml:"client_id"`
	Secret   string        `yaml:"secret"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertPath     string `yaml:"cert_path"`
	KeyPath      string `yaml:"key_path"`
	RedirectHTTP bool   `yaml:"redirect_http"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
	MetricsPort  string  `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type AuditConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	FingerprintKey string `yaml:"fingerprint_key"`
}

// Defaults returns the configuration used when neither a config file nor
// environment variables set a value.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			Host:      "0.0.0.0",
			StaticDir: "wwwroot",
		},
		Plaid: PlaidConfig{
			BaseURL: "https://sandbox.plaid.com",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "linkproxy",
			Environment:  "development",
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
			MetricsPort:  "9464",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "linkproxy",
			DBName:  "linkproxy",
			SSLMode: "disable",
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "link-events",
			ClientID: "linkproxy",
		},
		Audit: AuditConfig{
			Workers:   2,
			QueueSize: 256,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.StaticDir = getEnv("STATIC_DIR", cfg.Server.StaticDir)
	if hosts := splitList(getEnv("ALLOWED_HOSTS", "")); len(hosts) > 0 {
		cfg.Server.AllowedHosts = hosts
	}

	cfg.Plaid.BaseURL = strings.TrimRight(getEnv("PLAID_BASE_URL", cfg.Plaid.BaseURL), "/")
	cfg.Plaid.ClientID = getEnv("PLAID_CLIENT_ID", cfg.Plaid.ClientID)
	cfg.Plaid.Secret = getEnv("PLAID_SECRET", cfg.Plaid.Secret)
	if v := getEnv("PLAID_TIMEOUT", ""); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PLAID_TIMEOUT: %w", err)
		}
		cfg.Plaid.Timeout = timeout
	}

	cfg.TLS.Enabled = getBoolEnv("TLS_ENABLED", cfg.TLS.Enabled)
	cfg.TLS.CertPath = getEnv("TLS_CERT_PATH", cfg.TLS.CertPath)
	cfg.TLS.KeyPath = getEnv("TLS_KEY_PATH", cfg.TLS.KeyPath)
	cfg.TLS.RedirectHTTP = getBoolEnv("TLS_REDIRECT_HTTP", cfg.TLS.RedirectHTTP)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Telemetry.Enabled = getBoolEnv("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = getEnv("APP_ENV", cfg.Telemetry.Environment)
	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.MetricsPort = getEnv("METRICS_PORT", cfg.Telemetry.MetricsPort)
	if v := getEnv("OTEL_SAMPLE_RATIO", ""); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %w", err)
		}
		cfg.Telemetry.SampleRatio = ratio
	}

	cfg.Database.Enabled = getBoolEnv("AUDIT_DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	if v := getEnv("DB_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.Database.Port = port
	}
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Kafka.Enabled = getBoolEnv("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := splitList(getEnv("KAFKA_BROKERS", "")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.ClientID = getEnv("KAFKA_CLIENT_ID", cfg.Kafka.ClientID)

	if v := getEnv("AUDIT_WORKERS", ""); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_WORKERS: %w", err)
		}
		cfg.Audit.Workers = workers
	}
	if v := getEnv("AUDIT_QUEUE_SIZE", ""); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_QUEUE_SIZE: %w", err)
		}
		cfg.Audit.QueueSize = size
	}
	cfg.Audit.FingerprintKey = getEnv("AUDIT_FINGERPRINT_KEY", cfg.Audit.FingerprintKey)

	return nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Plaid.ClientID == "" {
		return fmt.Errorf("PLAID_CLIENT_ID is required")
	}
	if c.Plaid.Secret == "" {
		return fmt.Errorf("PLAID_SECRET is required")
	}
	if c.Plaid.BaseURL == "" {
		return fmt.Errorf("PLAID_BASE_URL must not be empty")
	}
	if c.Plaid.Timeout <= 0 {
		return fmt.Errorf("PLAID_TIMEOUT must be positive")
	}
	if c.Plaid.Timeout >= ServerWriteTimeout {
		return fmt.Errorf("PLAID_TIMEOUT must be less than the server write timeout (%s)", ServerWriteTimeout)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_ENABLED=true")
		}
	}

	if c.Audit.Workers < 1 {
		return fmt.Errorf("AUDIT_WORKERS must be at least 1")
	}
	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be at least 1")
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	c.Plaid.Secret = mask(c.Plaid.Secret)
	c.Database.Password = mask(c.Database.Password)
	c.Audit.FingerprintKey = mask(c.Audit.FingerprintKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
