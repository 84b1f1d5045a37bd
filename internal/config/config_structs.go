// Package config provides layered configuration loading and validation:
// defaults, an optional YAML file, environment variables and command line flags.
package config

import "time"

// Supported upstream sources
const (
	SourceRedis = "redis"
	SourceMQTT  = "mqtt"
)

// Config holds the complete configuration
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sink     SinkConfig     `yaml:"sink"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SourceConfig selects where events come from
type SourceConfig struct {
	Type string `yaml:"type"`
}

// RedisConfig holds Redis stream consumer configuration
type RedisConfig struct {
	Address  string `yaml:"address"`
	Stream   string `yaml:"stream"`   // empty: consume every stream
	Consumer string `yaml:"consumer"` // empty: generated from hostname
	Group    string `yaml:"group"`

	BatchSize     int           `yaml:"batch_size"`
	BlockTimeout  time.Duration `yaml:"block_timeout"`
	ClaimIdle     time.Duration `yaml:"claim_idle"`
	ClaimInterval time.Duration `yaml:"claim_interval"`
	// MaxDeliveries drops entries reclaimed more often than this; 0 disables
	MaxDeliveries int64 `yaml:"max_deliveries"`
	// DropFailed deletes entries of permanently failed batches instead of
	// leaving them pending for reclaim
	DropFailed bool `yaml:"drop_failed"`

	ConsumerIdleTimeout time.Duration `yaml:"consumer_idle_timeout"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	PingTimeout         time.Duration `yaml:"ping_timeout"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// Topic is subscribed when MQTT is the event source
	Topic string `yaml:"topic"`
	// ReceiptTopic receives one delivery receipt per batch; empty disables
	ReceiptTopic string `yaml:"receipt_topic"`
	QoS          byte   `yaml:"qos"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	SubscribeTimeout     time.Duration `yaml:"subscribe_timeout"`
	DisconnectTimeout    uint          `yaml:"disconnect_timeout"` // milliseconds

	TLSEnabled      bool   `yaml:"tls_enabled"`
	CACert          string `yaml:"ca_cert"`
	ClientCert      string `yaml:"client_cert"`
	ClientKey       string `yaml:"client_key"`
	InsecureSkip    bool   `yaml:"insecure_skip"`
	UseCertCNPrefix bool   `yaml:"use_cert_cn_prefix"` // prefix topics with the cert CN for ACLs
}

// SinkConfig configures the HTTP destination
type SinkConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	APIKey      string            `yaml:"api_key"`
	Encoding    EncodingConfig    `yaml:"encoding"`
	Compression CompressionConfig `yaml:"compression"`
	Batch       BatchConfig       `yaml:"batch"`
	Request     RequestConfig     `yaml:"request"`
	TLS         TLSConfig         `yaml:"tls"`
}

// EncodingConfig selects the body encoding and per-event rules
type EncodingConfig struct {
	Codec           string   `yaml:"codec"` // json or text
	OnlyFields      []string `yaml:"only_fields"`
	ExceptFields    []string `yaml:"except_fields"`
	TimestampFormat string   `yaml:"timestamp_format"` // rfc3339 or unix

	MessageKey   string `yaml:"message_key"`
	TimestampKey string `yaml:"timestamp_key"`
	HostKey      string `yaml:"host_key"`
}

// CompressionConfig enables body compression
type CompressionConfig struct {
	Type  string `yaml:"type"`  // none or gzip
	Level int    `yaml:"level"` // 1-9, 0 for default
}

// BatchConfig bounds a single request
type BatchConfig struct {
	MaxEvents int           `yaml:"max_events"`
	MaxBytes  int           `yaml:"max_bytes"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RequestConfig controls concurrency, timeouts and retries
type RequestConfig struct {
	Concurrency         int           `yaml:"concurrency"`
	Timeout             time.Duration `yaml:"timeout"`
	RetryAttempts       int           `yaml:"retry_attempts"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RetryMultiplier     float64       `yaml:"retry_multiplier"`
	RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff"`
	RetryJitter         float64       `yaml:"retry_jitter"`
	RateLimitNum        int           `yaml:"rate_limit_num"`
	RateLimitDuration   time.Duration `yaml:"rate_limit_duration"`
}

// TLSConfig holds outbound TLS material for the sink
type TLSConfig struct {
	CACert       string `yaml:"ca_cert"`
	ClientCert   string `yaml:"client_cert"`
	ClientKey    string `yaml:"client_key"`
	InsecureSkip bool   `yaml:"insecure_skip"`
}

// PipelineConfig holds pipeline orchestration settings
type PipelineConfig struct {
	BufferCapacity  int           `yaml:"buffer_capacity"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	ErrorBackoff    time.Duration `yaml:"error_backoff"`

	Healthcheck         bool          `yaml:"healthcheck"`
	HealthcheckFailFast bool          `yaml:"healthcheck_fail_fast"`
	HealthcheckTimeout  time.Duration `yaml:"healthcheck_timeout"`
}

// MetricsConfig configures the Prometheus exporter
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the exporter
}
