package config

import "time"

// DefaultEndpoint is the log intake used when no endpoint is configured
const DefaultEndpoint = "https://http-intake.logs.datadoghq.eu/v1/input"

// Batch byte limits accepted by the intake
const (
	MinBatchBytes = 1024
	MaxBatchBytes = 5 * 1024 * 1024
)

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:             "localhost:6379",
		Stream:              "",
		Consumer:            "",
		Group:               "logship",
		BatchSize:           500,
		BlockTimeout:        5 * time.Second,
		ClaimIdle:           30 * time.Second,
		ClaimInterval:       10 * time.Second,
		MaxDeliveries:       10,
		DropFailed:          false,
		ConsumerIdleTimeout: 5 * time.Minute,
		CleanupInterval:     1 * time.Minute,
		RefreshInterval:     30 * time.Second,
		DialTimeout:         10 * time.Second,
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        5 * time.Second,
		PingTimeout:         5 * time.Second,
	}
}

// defaultMQTTConfig returns the default MQTT configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:               "tcp://localhost:1883",
		ClientID:             "logship",
		Topic:                "logship/events",
		ReceiptTopic:         "",
		QoS:                  1,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         30 * time.Second,
		MaxReconnectInterval: 10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
	}
}

// defaultSinkConfig returns the default sink configuration. The API key
// and codec have no default.
func defaultSinkConfig() SinkConfig {
	return SinkConfig{
		Endpoint: DefaultEndpoint,
		Encoding: EncodingConfig{
			TimestampFormat: "rfc3339",
			MessageKey:      "message",
			TimestampKey:    "timestamp",
			HostKey:         "host",
		},
		Compression: CompressionConfig{Type: "none"},
		Batch: BatchConfig{
			MaxEvents: 1000,
			MaxBytes:  100 * 1024,
			Timeout:   1 * time.Second,
		},
		Request: RequestConfig{
			Concurrency:         5,
			Timeout:             60 * time.Second,
			RetryAttempts:       5,
			RetryInitialBackoff: 1 * time.Second,
			RetryMultiplier:     2,
			RetryMaxBackoff:     30 * time.Second,
			RetryJitter:         0.2,
			RateLimitNum:        0,
			RateLimitDuration:   1 * time.Second,
		},
	}
}

// defaultPipelineConfig returns the default pipeline configuration
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferCapacity:      10000,
		ShutdownTimeout:     30 * time.Second,
		DrainTimeout:        20 * time.Second,
		ErrorBackoff:        1 * time.Second,
		Healthcheck:         true,
		HealthcheckFailFast: false,
		HealthcheckTimeout:  10 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Source:   SourceConfig{Type: SourceRedis},
		Redis:    defaultRedisConfig(),
		MQTT:     defaultMQTTConfig(),
		Sink:     defaultSinkConfig(),
		Pipeline: defaultPipelineConfig(),
		Metrics:  MetricsConfig{Address: ""},
	}
}
