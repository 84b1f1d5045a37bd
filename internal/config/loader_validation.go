package config

import (
	"fmt"
	"net/url"
)

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	switch cfg.Source.Type {
	case SourceRedis:
		if err := validateRedis(&cfg.Redis); err != nil {
			return err
		}
	case SourceMQTT:
		if cfg.MQTT.Topic == "" {
			return fmt.Errorf("mqtt topic cannot be empty when mqtt is the source")
		}
	default:
		return fmt.Errorf("unknown source type %q (want %s or %s)", cfg.Source.Type, SourceRedis, SourceMQTT)
	}
	if cfg.Source.Type == SourceMQTT || cfg.MQTT.ReceiptTopic != "" {
		if err := validateMQTT(&cfg.MQTT); err != nil {
			return err
		}
	}
	if err := validateSink(&cfg.Sink); err != nil {
		return err
	}
	return validatePipeline(&cfg.Pipeline)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Consumer == "" {
		return fmt.Errorf("redis consumer name cannot be empty")
	}
	if cfg.Group == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("redis batch size must be positive")
	}
	if cfg.MaxDeliveries < 0 {
		return fmt.Errorf("redis max deliveries cannot be negative")
	}
	// in-flight entries are refreshed once per claim interval and must not
	// go idle in between
	if cfg.ClaimInterval > 0 && cfg.ClaimInterval >= cfg.ClaimIdle {
		return fmt.Errorf("redis claim interval (%v) must be shorter than claim idle (%v)", cfg.ClaimInterval, cfg.ClaimIdle)
	}
	return nil
}

// validateMQTT validates MQTT configuration
func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

// validateSink validates the destination configuration. Limits that the
// sink itself enforces are checked again when it is built.
func validateSink(cfg *SinkConfig) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("sink api key cannot be empty")
	}
	switch cfg.Encoding.Codec {
	case "json", "text":
	case "":
		return fmt.Errorf("sink encoding codec is required (json or text)")
	default:
		return fmt.Errorf("unknown sink encoding codec %q", cfg.Encoding.Codec)
	}
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sink endpoint %q is not a valid URL", cfg.Endpoint)
		}
	}
	if cfg.Batch.MaxBytes < MinBatchBytes || cfg.Batch.MaxBytes > MaxBatchBytes {
		return fmt.Errorf("sink batch max bytes must be between %d and %d, got %d",
			MinBatchBytes, MaxBatchBytes, cfg.Batch.MaxBytes)
	}
	if cfg.Batch.MaxEvents < 1 {
		return fmt.Errorf("sink batch max events must be positive")
	}
	if cfg.Request.Concurrency < 1 {
		return fmt.Errorf("sink request concurrency must be positive")
	}
	return nil
}

// validatePipeline validates Pipeline configuration
func validatePipeline(cfg *PipelineConfig) error {
	if cfg.BufferCapacity < 1 {
		return fmt.Errorf("pipeline buffer capacity must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("pipeline shutdown timeout must be positive")
	}
	if cfg.DrainTimeout < 0 {
		return fmt.Errorf("pipeline drain timeout cannot be negative")
	}
	if cfg.Healthcheck && cfg.HealthcheckTimeout <= 0 {
		return fmt.Errorf("pipeline healthcheck timeout must be positive when the healthcheck is enabled")
	}
	return nil
}
