package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const (
	testRedisAddr = "localhost:6379"
	testAPIKey    = "test-api-key"
)

// requiredArgs are the flags without a default
var requiredArgs = []string{"--sink-api-key=" + testAPIKey, "--sink-encoding=json"}

func TestLoad_Defaults(t *testing.T) {
	clearTestEnv(t)

	cfg, err := Load(requiredArgs)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Source.Type != SourceRedis {
		t.Errorf("Source.Type = %s; want %s", cfg.Source.Type, SourceRedis)
	}
	if cfg.Redis.Address != testRedisAddr {
		t.Errorf("Redis.Address = %s; want %s", cfg.Redis.Address, testRedisAddr)
	}
	if cfg.Redis.Consumer == "" {
		t.Error("Redis.Consumer should be generated when empty")
	}
	if cfg.Sink.Endpoint != DefaultEndpoint {
		t.Errorf("Sink.Endpoint = %s; want %s", cfg.Sink.Endpoint, DefaultEndpoint)
	}
	if cfg.Sink.Batch.MaxBytes != 100*1024 {
		t.Errorf("Sink.Batch.MaxBytes = %d; want %d", cfg.Sink.Batch.MaxBytes, 100*1024)
	}
	if cfg.Sink.Compression.Type != "none" {
		t.Errorf("Sink.Compression.Type = %s; want none", cfg.Sink.Compression.Type)
	}
	if cfg.Sink.Request.Concurrency != 5 {
		t.Errorf("Sink.Request.Concurrency = %d; want 5", cfg.Sink.Request.Concurrency)
	}
	if !cfg.Pipeline.Healthcheck {
		t.Error("Pipeline.Healthcheck should default to true")
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	clearTestEnv(t)

	if _, err := Load([]string{"--sink-encoding=text"}); err == nil {
		t.Fatal("Load() succeeded without an api key")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearTestEnv(t)

	t.Setenv("REDIS_ADDRESS", "redis-env:6379")
	t.Setenv("REDIS_STREAM", "env-stream")
	t.Setenv("REDIS_BATCH_SIZE", "100")
	t.Setenv("SINK_API_KEY", "env-key")
	t.Setenv("SINK_ENCODING_CODEC", "TEXT")
	t.Setenv("SINK_BATCH_TIMEOUT", "250ms")
	t.Setenv("PIPELINE_BUFFER_CAPACITY", "500")
	t.Setenv("PIPELINE_HEALTHCHECK", "false")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Address != "redis-env:6379" {
		t.Errorf("Redis.Address = %s; want redis-env:6379", cfg.Redis.Address)
	}
	if cfg.Redis.Stream != "env-stream" {
		t.Errorf("Redis.Stream = %s; want env-stream", cfg.Redis.Stream)
	}
	if cfg.Redis.BatchSize != 100 {
		t.Errorf("Redis.BatchSize = %d; want 100", cfg.Redis.BatchSize)
	}
	if cfg.Sink.APIKey != "env-key" {
		t.Errorf("Sink.APIKey = %s; want env-key", cfg.Sink.APIKey)
	}
	if cfg.Sink.Encoding.Codec != "text" {
		t.Errorf("Sink.Encoding.Codec = %s; want text", cfg.Sink.Encoding.Codec)
	}
	if cfg.Sink.Batch.Timeout != 250*time.Millisecond {
		t.Errorf("Sink.Batch.Timeout = %v; want 250ms", cfg.Sink.Batch.Timeout)
	}
	if cfg.Pipeline.BufferCapacity != 500 {
		t.Errorf("Pipeline.BufferCapacity = %d; want 500", cfg.Pipeline.BufferCapacity)
	}
	if cfg.Pipeline.Healthcheck {
		t.Error("Pipeline.Healthcheck = true; want false")
	}
}

func TestLoad_FlagsPrecedence(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("REDIS_ADDRESS", "redis-env:6379")
	t.Setenv("SINK_API_KEY", "env-key")
	t.Setenv("SINK_ENCODING_CODEC", "json")

	cfg, err := Load([]string{
		"--redis-address=redis-flag:6379",
		"--sink-api-key", "flag-key",
		"--sink-batch-max-events=1",
	})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Address != "redis-flag:6379" {
		t.Errorf("Redis.Address = %s; want redis-flag:6379", cfg.Redis.Address)
	}
	if cfg.Sink.APIKey != "flag-key" {
		t.Errorf("Sink.APIKey = %s; want flag-key", cfg.Sink.APIKey)
	}
	if cfg.Sink.Batch.MaxEvents != 1 {
		t.Errorf("Sink.Batch.MaxEvents = %d; want 1", cfg.Sink.Batch.MaxEvents)
	}
	if cfg.Sink.Encoding.Codec != "json" {
		t.Errorf("Sink.Encoding.Codec = %s; want json from environment", cfg.Sink.Encoding.Codec)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearTestEnv(t)

	path := writeConfigFile(t, `
source:
  type: mqtt
mqtt:
  broker: tcp://file-broker:1883
  topic: logs/in
sink:
  api_key: file-key
  encoding:
    codec: text
    except_fields: [secret, token]
  compression:
    type: gzip
    level: 9
  batch:
    max_events: 50
    timeout: 3s
  request:
    retry_jitter: 0
`)

	t.Setenv("SINK_BATCH_MAX_EVENTS", "75")

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Source.Type != SourceMQTT {
		t.Errorf("Source.Type = %s; want mqtt", cfg.Source.Type)
	}
	if cfg.MQTT.Broker != "tcp://file-broker:1883" {
		t.Errorf("MQTT.Broker = %s; want tcp://file-broker:1883", cfg.MQTT.Broker)
	}
	if cfg.Sink.APIKey != "file-key" {
		t.Errorf("Sink.APIKey = %s; want file-key", cfg.Sink.APIKey)
	}
	if len(cfg.Sink.Encoding.ExceptFields) != 2 || cfg.Sink.Encoding.ExceptFields[1] != "token" {
		t.Errorf("Sink.Encoding.ExceptFields = %v; want [secret token]", cfg.Sink.Encoding.ExceptFields)
	}
	if cfg.Sink.Compression.Type != "gzip" || cfg.Sink.Compression.Level != 9 {
		t.Errorf("Sink.Compression = %+v; want gzip level 9", cfg.Sink.Compression)
	}
	if cfg.Sink.Batch.MaxEvents != 75 {
		t.Errorf("Sink.Batch.MaxEvents = %d; want 75 (environment over file)", cfg.Sink.Batch.MaxEvents)
	}
	if cfg.Sink.Batch.Timeout != 3*time.Second {
		t.Errorf("Sink.Batch.Timeout = %v; want 3s", cfg.Sink.Batch.Timeout)
	}
	if cfg.Sink.Batch.MaxBytes != 100*1024 {
		t.Errorf("Sink.Batch.MaxBytes = %d; want default kept", cfg.Sink.Batch.MaxBytes)
	}
}

func TestLoad_ConfigFileFromEnvironment(t *testing.T) {
	clearTestEnv(t)
	path := writeConfigFile(t, "sink:\n  api_key: k\n  encoding:\n    codec: json\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sink.APIKey != "k" {
		t.Errorf("Sink.APIKey = %s; want k", cfg.Sink.APIKey)
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	clearTestEnv(t)

	if _, err := Load([]string{"--config=/nonexistent/logship.yaml"}); err == nil {
		t.Error("Load() succeeded with a missing config file")
	}

	path := writeConfigFile(t, "sink: [not, a, map")
	if _, err := Load([]string{"--config=" + path}); err == nil {
		t.Error("Load() succeeded with malformed YAML")
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	clearTestEnv(t)

	if _, err := Load(append([]string{"--no-such-flag"}, requiredArgs...)); err == nil {
		t.Error("Load() succeeded with an unknown flag")
	}
}

func TestLoad_Help(t *testing.T) {
	clearTestEnv(t)

	_, err := Load([]string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("Load(--help) error = %v; want pflag.ErrHelp", err)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logship.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		EnvConfigFile, "SOURCE_TYPE", "METRICS_ADDRESS",
		"REDIS_ADDRESS", "REDIS_STREAM", "REDIS_CONSUMER", "REDIS_GROUP",
		"REDIS_BATCH_SIZE", "REDIS_MAX_DELIVERIES", "REDIS_DROP_FAILED",
		"REDIS_BLOCK_TIMEOUT", "REDIS_CLAIM_IDLE", "REDIS_CLAIM_INTERVAL",
		"REDIS_CONSUMER_IDLE_TIMEOUT", "REDIS_CLEANUP_INTERVAL", "REDIS_REFRESH_INTERVAL",
		"REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT", "REDIS_PING_TIMEOUT",
		"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC", "MQTT_RECEIPT_TOPIC",
		"MQTT_QOS", "MQTT_CONNECT_TIMEOUT", "MQTT_WRITE_TIMEOUT",
		"MQTT_MAX_RECONNECT_INTERVAL", "MQTT_SUBSCRIBE_TIMEOUT", "MQTT_DISCONNECT_TIMEOUT",
		"MQTT_TLS_ENABLED", "MQTT_CA_CERT", "MQTT_CLIENT_CERT", "MQTT_CLIENT_KEY",
		"MQTT_TLS_INSECURE_SKIP", "MQTT_USE_CERT_CN_PREFIX",
		"SINK_ENDPOINT", "SINK_API_KEY", "DD_API_KEY",
		"SINK_ENCODING_CODEC", "SINK_ENCODING_ONLY_FIELDS", "SINK_ENCODING_EXCEPT_FIELDS",
		"SINK_ENCODING_TIMESTAMP_FORMAT", "SINK_COMPRESSION_TYPE", "SINK_COMPRESSION_LEVEL",
		"SINK_TLS_CA_CERT", "SINK_TLS_CLIENT_CERT", "SINK_TLS_CLIENT_KEY", "SINK_TLS_INSECURE_SKIP",
		"SINK_BATCH_MAX_EVENTS", "SINK_BATCH_MAX_BYTES", "SINK_BATCH_TIMEOUT",
		"SINK_REQUEST_CONCURRENCY", "SINK_REQUEST_TIMEOUT", "SINK_REQUEST_RETRY_ATTEMPTS",
		"SINK_REQUEST_RETRY_INITIAL_BACKOFF", "SINK_REQUEST_RETRY_MULTIPLIER",
		"SINK_REQUEST_RETRY_MAX_BACKOFF", "SINK_REQUEST_RETRY_JITTER",
		"SINK_REQUEST_RATE_LIMIT_NUM", "SINK_REQUEST_RATE_LIMIT_DURATION",
		"PIPELINE_BUFFER_CAPACITY", "PIPELINE_SHUTDOWN_TIMEOUT", "PIPELINE_DRAIN_TIMEOUT",
		"PIPELINE_ERROR_BACKOFF", "PIPELINE_HEALTHCHECK", "PIPELINE_HEALTHCHECK_FAIL_FAST",
		"PIPELINE_HEALTHCHECK_TIMEOUT",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}
