package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the actuation service.
// All configuration is loaded from YAML and can be overridden by environment
// variables. The struct is constructed once at startup and treated as
// immutable afterwards; components receive the sections they need explicitly.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Downstream   DownstreamConfig   `yaml:"downstream"`
	Actuation    ActuationConfig    `yaml:"actuation"`
	VDI          VDIConfig          `yaml:"vdi"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Database     DatabaseConfig     `yaml:"database"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
}

// ServiceConfig contains HTTP server settings.
type ServiceConfig struct {
	Host     string               `yaml:"host"`
	Port     int                  `yaml:"port"`
	Timeouts ServiceTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig           `yaml:"cors"`
}

// ServiceTimeoutConfig contains HTTP timeout settings in seconds.
type ServiceTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DownstreamConfig contains base URLs for the external collaborators.
// Empty URLs disable the corresponding integration: an empty policy URL falls
// back to the local risk allowlist, empty telemetry sink URLs reduce the
// emitter to the in-memory buffer only.
type DownstreamConfig struct {
	OrchestratorURL string `yaml:"orchestrator_url"`
	PolicyURL       string `yaml:"policy_url"`
	ConsentURL      string `yaml:"consent_url"`
	IdentityURL     string `yaml:"identity_url"`
	ContextURL      string `yaml:"context_url"`
	ContextGraphURL string `yaml:"context_graph_url"`
	RendererURL     string `yaml:"renderer_url"`
	VDIAgentURL     string `yaml:"vdi_agent_url"`
}

// ActuationConfig contains the process-wide execution gates.
type ActuationConfig struct {
	// LoggingOnly forces every action through the logging driver,
	// recording intent without any real-world effect.
	LoggingOnly bool `yaml:"logging_only"`

	// AllowedRiskLevels is the set of risk levels permitted to execute.
	// Envelopes outside the set are rejected before any policy call.
	AllowedRiskLevels []string `yaml:"allowed_risk_levels"`

	// RequireAuth enables bearer token verification on mutating endpoints.
	RequireAuth bool `yaml:"require_auth"`

	// ServiceToken is the shared static token accepted when RequireAuth
	// is set. JWT bearer tokens signed with TokenSecret are also accepted.
	ServiceToken string `yaml:"service_token"`

	// TokenSecret is the HS256 secret for JWT service tokens. Optional;
	// when empty only the static ServiceToken is accepted.
	TokenSecret string `yaml:"token_secret"`

	// RequiredScopes lists scopes an envelope's policy context must carry.
	// Empty list disables the scope check.
	RequiredScopes []string `yaml:"required_scopes"`
}

// VDIConfig contains tuning for the VDI task proxy.
// Durations are expressed in seconds to match the environment surface.
type VDIConfig struct {
	AgentToken              string  `yaml:"agent_token"`
	RetryAttempts           int     `yaml:"retry_attempts"`
	RetryBackoffBaseSeconds float64 `yaml:"retry_backoff_base_seconds"`
	RetryMaxDelaySeconds    float64 `yaml:"retry_max_delay_seconds"`
	RequestTimeoutSeconds   float64 `yaml:"request_timeout_seconds"`
	ProgressIntervalSeconds float64 `yaml:"progress_interval_seconds"`
	OverallDeadlineSeconds  float64 `yaml:"overall_deadline_seconds"`
}

// ConfirmationConfig contains confirmation handshake settings.
type ConfirmationConfig struct {
	// ExpirySeconds is how long a pending confirmation is held before it
	// expires and the action terminates as rejected.
	ExpirySeconds int `yaml:"expiry_seconds"`
}

// MQTTConfig contains MQTT broker connection settings for the MQTT driver.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite settings for the durable audit log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains the optional InfluxDB telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WebSocketConfig contains settings for the telemetry stream endpoint.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// An empty path skips the file stage entirely, which supports deployments
// configured purely through the environment.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for env-only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Host: "0.0.0.0",
			Port: 8086,
			Timeouts: ServiceTimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		Downstream: DownstreamConfig{
			VDIAgentURL: "http://agent-vdi:8083",
		},
		Actuation: ActuationConfig{
			AllowedRiskLevels: []string{"low", "medium"},
		},
		VDI: VDIConfig{
			RetryAttempts:           3,
			RetryBackoffBaseSeconds: 0.25,
			RetryMaxDelaySeconds:    2.0,
			RequestTimeoutSeconds:   40.0,
			OverallDeadlineSeconds:  300.0,
		},
		Confirmation: ConfirmationConfig{
			ExpirySeconds: 300,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "actuation-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/actuation.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. The names follow the service's published surface
// (ACTUATION_*, VDI_*, downstream *_URL) rather than a generated pattern,
// because they form part of the deployment contract.
func applyEnvOverrides(cfg *Config) { //nolint:gocognit,gocyclo // flat env mapping, one branch per variable
	if v := os.Getenv("ACTUATION_HOST"); v != "" {
		cfg.Service.Host = v
	}
	if v, ok := envInt("ACTUATION_PORT"); ok {
		cfg.Service.Port = v
	}

	// Downstream service URLs
	if v := os.Getenv("ORCHESTRATOR_URL"); v != "" {
		cfg.Downstream.OrchestratorURL = v
	}
	if v := os.Getenv("POLICY_URL"); v != "" {
		cfg.Downstream.PolicyURL = v
	}
	if v := os.Getenv("CONSENT_URL"); v != "" {
		cfg.Downstream.ConsentURL = v
	}
	if v := os.Getenv("IDENTITY_URL"); v != "" {
		cfg.Downstream.IdentityURL = v
	}
	if v := os.Getenv("CONTEXT_URL"); v != "" {
		cfg.Downstream.ContextURL = v
	}
	if v := os.Getenv("CONTEXT_GRAPH_URL"); v != "" {
		cfg.Downstream.ContextGraphURL = v
	}
	if v := os.Getenv("RENDERER_URL"); v != "" {
		cfg.Downstream.RendererURL = v
	}
	if v := os.Getenv("VDI_AGENT_URL"); v != "" {
		cfg.Downstream.VDIAgentURL = v
	}

	// Actuation gates
	if v, ok := envBool("ACTUATION_LOGGING_ONLY"); ok {
		cfg.Actuation.LoggingOnly = v
	}
	if v := os.Getenv("ACTUATION_ALLOWED_RISK_LEVELS"); v != "" {
		cfg.Actuation.AllowedRiskLevels = splitList(v)
	}
	if v, ok := envBool("ACTUATION_REQUIRE_AUTH"); ok {
		cfg.Actuation.RequireAuth = v
	}
	if v := os.Getenv("ACTUATION_SERVICE_TOKEN"); v != "" {
		cfg.Actuation.ServiceToken = v
	}
	if v := os.Getenv("ACTUATION_TOKEN_SECRET"); v != "" {
		cfg.Actuation.TokenSecret = v
	}
	if v := os.Getenv("ACTUATION_REQUIRED_SCOPES"); v != "" {
		cfg.Actuation.RequiredScopes = splitList(v)
	}

	// VDI proxy tuning
	if v := os.Getenv("VDI_AGENT_TOKEN"); v != "" {
		cfg.VDI.AgentToken = v
	}
	if v, ok := envInt("VDI_RETRY_ATTEMPTS"); ok {
		cfg.VDI.RetryAttempts = v
	}
	if v, ok := envFloat("VDI_RETRY_BACKOFF_BASE_SECONDS"); ok {
		cfg.VDI.RetryBackoffBaseSeconds = v
	}
	if v, ok := envFloat("VDI_RETRY_MAX_DELAY_SECONDS"); ok {
		cfg.VDI.RetryMaxDelaySeconds = v
	}
	if v, ok := envFloat("VDI_REQUEST_TIMEOUT_SECONDS"); ok {
		cfg.VDI.RequestTimeoutSeconds = v
	}
	if v, ok := envFloat("VDI_PROGRESS_INTERVAL_SECONDS"); ok {
		cfg.VDI.ProgressIntervalSeconds = v
	}

	// Confirmation handshake
	if v, ok := envInt("ACTUATION_CONFIRMATION_EXPIRY_SECONDS"); ok {
		cfg.Confirmation.ExpirySeconds = v
	}

	// MQTT driver
	if v, ok := envBool("ACTUATION_MQTT_ENABLED"); ok {
		cfg.MQTT.Enabled = v
	}
	if v := os.Getenv("ACTUATION_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := envInt("ACTUATION_MQTT_PORT"); ok {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("ACTUATION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ACTUATION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Persistence and telemetry sinks
	if v := os.Getenv("ACTUATION_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v, ok := envBool("ACTUATION_INFLUXDB_ENABLED"); ok {
		cfg.InfluxDB.Enabled = v
	}
	if v := os.Getenv("ACTUATION_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("ACTUATION_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.Port < 1 || c.Service.Port > 65535 {
		errs = append(errs, "service.port must be between 1 and 65535")
	}

	for _, level := range c.Actuation.AllowedRiskLevels {
		switch level {
		case "low", "medium", "high":
		default:
			errs = append(errs, fmt.Sprintf("actuation.allowed_risk_levels contains unknown level %q", level))
		}
	}

	// Auth cannot be required without something to verify against.
	if c.Actuation.RequireAuth && c.Actuation.ServiceToken == "" && c.Actuation.TokenSecret == "" {
		errs = append(errs, "actuation.require_auth is set but neither service_token nor token_secret is configured")
	}

	if c.VDI.RetryAttempts < 1 {
		errs = append(errs, "vdi.retry_attempts must be at least 1")
	}
	if c.VDI.RetryBackoffBaseSeconds < 0 {
		errs = append(errs, "vdi.retry_backoff_base_seconds must not be negative")
	}
	if c.VDI.RetryMaxDelaySeconds < 0 {
		errs = append(errs, "vdi.retry_max_delay_seconds must not be negative")
	}
	if c.VDI.RequestTimeoutSeconds <= 0 {
		errs = append(errs, "vdi.request_timeout_seconds must be positive")
	}

	if c.Confirmation.ExpirySeconds <= 0 {
		errs = append(errs, "confirmation.expiry_seconds must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Service.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Service.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Service.Timeouts.Idle) * time.Second
}

// RequestTimeout returns the per-attempt VDI request timeout as a Duration.
func (v VDIConfig) RequestTimeout() time.Duration {
	return secondsToDuration(v.RequestTimeoutSeconds)
}

// BackoffBase returns the VDI retry backoff base as a Duration.
func (v VDIConfig) BackoffBase() time.Duration {
	return secondsToDuration(v.RetryBackoffBaseSeconds)
}

// BackoffMax returns the VDI retry backoff cap as a Duration.
func (v VDIConfig) BackoffMax() time.Duration {
	return secondsToDuration(v.RetryMaxDelaySeconds)
}

// ProgressInterval returns the progress heartbeat interval as a Duration.
// Zero disables progress emission.
func (v VDIConfig) ProgressInterval() time.Duration {
	return secondsToDuration(v.ProgressIntervalSeconds)
}

// OverallDeadline returns the ceiling for a whole VDI call including
// retries and backoff delays.
func (v VDIConfig) OverallDeadline() time.Duration {
	return secondsToDuration(v.OverallDeadlineSeconds)
}

// Expiry returns the confirmation hold expiry as a Duration.
func (c ConfirmationConfig) Expiry() time.Duration {
	return time.Duration(c.ExpirySeconds) * time.Second
}

// secondsToDuration converts a fractional seconds value to a Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// splitList splits a comma-separated environment value into trimmed,
// non-empty entries.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// envInt reads an integer environment variable.
func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envFloat reads a float environment variable.
func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// envBool reads a boolean environment variable ("true"/"false", case
// insensitive).
func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	return strings.EqualFold(v, "true"), true
}
