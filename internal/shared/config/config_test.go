package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("PLAID_CLIENT_ID", "test-client-id")
	t.Setenv("PLAID_SECRET", "test-secret")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Plaid.ClientID != "test-client-id" {
		t.Errorf("Plaid.ClientID = %q, want %q", cfg.Plaid.ClientID, "test-client-id")
	}
	if cfg.Plaid.BaseURL != "https://sandbox.plaid.com" {
		t.Errorf("Plaid.BaseURL = %q, want sandbox default", cfg.Plaid.BaseURL)
	}
	if cfg.Plaid.Timeout != 10*time.Second {
		t.Errorf("Plaid.Timeout = %v, want 10s", cfg.Plaid.Timeout)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Enabled || cfg.Kafka.Enabled {
		t.Error("audit sinks should be disabled by default")
	}
}

func TestLoad_MissingClientID(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "")
	t.Setenv("PLAID_SECRET", "test-secret")
	os.Unsetenv("PLAID_CLIENT_ID")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing PLAID_CLIENT_ID, got nil")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "test-client-id")
	t.Setenv("PLAID_SECRET", "")
	os.Unsetenv("PLAID_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing PLAID_SECRET, got nil")
	}
}

func TestLoad_BaseURLTrailingSlash(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PLAID_BASE_URL", "https://development.plaid.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Plaid.BaseURL != "https://development.plaid.com" {
		t.Errorf("Plaid.BaseURL = %q, want trailing slash trimmed", cfg.Plaid.BaseURL)
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PLAID_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid PLAID_TIMEOUT, got nil")
	}
}

func TestLoad_NegativeTimeout(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PLAID_TIMEOUT", "-1s")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for negative PLAID_TIMEOUT, got nil")
	}
}

func TestLoad_TimeoutBelowWriteTimeout(t *testing.T) {
	tests := []struct {
		timeout string
		wantErr bool
	}{
		{timeout: "10s", wantErr: false},
		{timeout: "14900ms", wantErr: false},
		{timeout: "15s", wantErr: true},
		{timeout: "1m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.timeout, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv("PLAID_TIMEOUT", tt.timeout)

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_SampleRatio(t *testing.T) {
	tests := []struct {
		value   string
		want    float64
		wantErr bool
	}{
		{value: "", want: 1},
		{value: "0.25", want: 0.25},
		{value: "0", want: 0},
		{value: "1.5", wantErr: true},
		{value: "-0.1", wantErr: true},
		{value: "half", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv("OTEL_SAMPLE_RATIO", tt.value)

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.Telemetry.SampleRatio != tt.want {
				t.Errorf("SampleRatio = %v, want %v", cfg.Telemetry.SampleRatio, tt.want)
			}
		})
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_TLSValidation_MissingKeyPath(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "/path/to/cert")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without key path, got nil")
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestLoad_KafkaConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("KAFKA_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "events")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled should be true")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "events" {
		t.Errorf("Kafka.Topic = %q, want events", cfg.Kafka.Topic)
	}
}

func TestLoad_AuditWorkers(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("AUDIT_WORKERS", "0")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for AUDIT_WORKERS=0, got nil")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
plaid:
  base_url: https://production.plaid.com
  client_id: file-client
  secret: file-secret
  timeout: 5s
kafka:
  topic: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PLAID_SECRET", "env-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Plaid.ClientID != "file-client" {
		t.Errorf("Plaid.ClientID = %q, want file-client", cfg.Plaid.ClientID)
	}
	if cfg.Plaid.Secret != "env-secret" {
		t.Errorf("Plaid.Secret = %q, env should override file", cfg.Plaid.Secret)
	}
	if cfg.Plaid.Timeout != 5*time.Second {
		t.Errorf("Plaid.Timeout = %v, want 5s", cfg.Plaid.Timeout)
	}
	if cfg.Kafka.Topic != "from-file" {
		t.Errorf("Kafka.Topic = %q, want from-file", cfg.Kafka.Topic)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, default should survive partial file", cfg.Server.Host)
	}
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing config file, got nil")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Plaid.Secret = "super-secret"
	cfg.Database.Password = "pw"

	red := cfg.Redacted()
	if red.Plaid.Secret == "super-secret" || red.Database.Password == "pw" {
		t.Error("Redacted() leaked a secret")
	}
	if cfg.Plaid.Secret != "super-secret" {
		t.Error("Redacted() must not modify the original")
	}
	if red.Audit.FingerprintKey != "" {
		t.Error("empty values should stay empty")
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"invalid", true, true},   // returns default
		{"invalid", false, false}, // returns default
		{"", true, true},          // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}
