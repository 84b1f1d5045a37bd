package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfigFile names the environment variable holding the YAML file path
const EnvConfigFile = "LOGSHIP_CONFIG"

// loadFromEnv applies every environment variable layer
func loadFromEnv(cfg *Config) {
	if v := getEnvString("SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	loadRedisFromEnv(&cfg.Redis)
	loadMQTTFromEnv(&cfg.MQTT)
	loadSinkFromEnv(&cfg.Sink)
	loadPipelineFromEnv(&cfg.Pipeline)
	if v := getEnvString("METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
}

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	loadRedisStrings(cfg)
	loadRedisInts(cfg)
	loadRedisTimeouts(cfg)
}

func loadRedisStrings(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_STREAM"); v != "" {
		cfg.Stream = v
	}
	if v := getEnvString("REDIS_CONSUMER"); v != "" {
		cfg.Consumer = v
	}
	if v := getEnvString("REDIS_GROUP"); v != "" {
		cfg.Group = v
	}
}

func loadRedisInts(cfg *RedisConfig) {
	if v := getEnvInt("REDIS_BATCH_SIZE"); v != 0 {
		cfg.BatchSize = v
	}
	if v := getEnvInt("REDIS_MAX_DELIVERIES"); v != 0 {
		cfg.MaxDeliveries = int64(v)
	}
	if v, ok := getEnvBool("REDIS_DROP_FAILED"); ok {
		cfg.DropFailed = v
	}
}

func loadRedisTimeouts(cfg *RedisConfig) {
	if v := getEnvDuration("REDIS_BLOCK_TIMEOUT"); v != 0 {
		cfg.BlockTimeout = v
	}
	if v := getEnvDuration("REDIS_CLAIM_IDLE"); v != 0 {
		cfg.ClaimIdle = v
	}
	if v := getEnvDuration("REDIS_CLAIM_INTERVAL"); v != 0 {
		cfg.ClaimInterval = v
	}
	if v := getEnvDuration("REDIS_CONSUMER_IDLE_TIMEOUT"); v != 0 {
		cfg.ConsumerIdleTimeout = v
	}
	if v := getEnvDuration("REDIS_CLEANUP_INTERVAL"); v != 0 {
		cfg.CleanupInterval = v
	}
	if v := getEnvDuration("REDIS_REFRESH_INTERVAL"); v != 0 {
		cfg.RefreshInterval = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_TOPIC"); v != "" {
		cfg.Topic = v
	}
	if v := getEnvString("MQTT_RECEIPT_TOPIC"); v != "" {
		cfg.ReceiptTopic = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v, ok := lookupEnvInt("MQTT_QOS"); ok && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v > 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - checked positive
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
	if v, ok := getEnvBool("MQTT_TLS_ENABLED"); ok {
		cfg.TLSEnabled = v
	}
	if v, ok := getEnvBool("MQTT_TLS_INSECURE_SKIP"); ok {
		cfg.InsecureSkip = v
	}
	if v, ok := getEnvBool("MQTT_USE_CERT_CN_PREFIX"); ok {
		cfg.UseCertCNPrefix = v
	}
}

// loadSinkFromEnv loads the destination configuration from environment variables
func loadSinkFromEnv(cfg *SinkConfig) {
	loadSinkStrings(cfg)
	loadSinkBatch(&cfg.Batch)
	loadSinkRequest(&cfg.Request)
}

func loadSinkStrings(cfg *SinkConfig) {
	if v := getEnvString("SINK_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getEnvString("SINK_API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := getEnvString("DD_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := getEnvString("SINK_ENCODING_CODEC"); v != "" {
		cfg.Encoding.Codec = v
	}
	if v := getEnvList("SINK_ENCODING_ONLY_FIELDS"); len(v) > 0 {
		cfg.Encoding.OnlyFields = v
	}
	if v := getEnvList("SINK_ENCODING_EXCEPT_FIELDS"); len(v) > 0 {
		cfg.Encoding.ExceptFields = v
	}
	if v := getEnvString("SINK_ENCODING_TIMESTAMP_FORMAT"); v != "" {
		cfg.Encoding.TimestampFormat = v
	}
	if v := getEnvString("SINK_COMPRESSION_TYPE"); v != "" {
		cfg.Compression.Type = v
	}
	if v := getEnvInt("SINK_COMPRESSION_LEVEL"); v != 0 {
		cfg.Compression.Level = v
	}
	if v := getEnvString("SINK_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}
	if v := getEnvString("SINK_TLS_CLIENT_CERT"); v != "" {
		cfg.TLS.ClientCert = v
	}
	if v := getEnvString("SINK_TLS_CLIENT_KEY"); v != "" {
		cfg.TLS.ClientKey = v
	}
	if v, ok := getEnvBool("SINK_TLS_INSECURE_SKIP"); ok {
		cfg.TLS.InsecureSkip = v
	}
}

func loadSinkBatch(cfg *BatchConfig) {
	if v := getEnvInt("SINK_BATCH_MAX_EVENTS"); v != 0 {
		cfg.MaxEvents = v
	}
	if v := getEnvInt("SINK_BATCH_MAX_BYTES"); v != 0 {
		cfg.MaxBytes = v
	}
	if v := getEnvDuration("SINK_BATCH_TIMEOUT"); v != 0 {
		cfg.Timeout = v
	}
}

func loadSinkRequest(cfg *RequestConfig) {
	if v := getEnvInt("SINK_REQUEST_CONCURRENCY"); v != 0 {
		cfg.Concurrency = v
	}
	if v := getEnvDuration("SINK_REQUEST_TIMEOUT"); v != 0 {
		cfg.Timeout = v
	}
	if v, ok := lookupEnvInt("SINK_REQUEST_RETRY_ATTEMPTS"); ok {
		cfg.RetryAttempts = v
	}
	if v := getEnvDuration("SINK_REQUEST_RETRY_INITIAL_BACKOFF"); v != 0 {
		cfg.RetryInitialBackoff = v
	}
	if v := getEnvFloat("SINK_REQUEST_RETRY_MULTIPLIER"); v != 0 {
		cfg.RetryMultiplier = v
	}
	if v := getEnvDuration("SINK_REQUEST_RETRY_MAX_BACKOFF"); v != 0 {
		cfg.RetryMaxBackoff = v
	}
	if v := getEnvFloat("SINK_REQUEST_RETRY_JITTER"); v != 0 {
		cfg.RetryJitter = v
	}
	if v := getEnvInt("SINK_REQUEST_RATE_LIMIT_NUM"); v != 0 {
		cfg.RateLimitNum = v
	}
	if v := getEnvDuration("SINK_REQUEST_RATE_LIMIT_DURATION"); v != 0 {
		cfg.RateLimitDuration = v
	}
}

// loadPipelineFromEnv loads Pipeline configuration from environment variables
func loadPipelineFromEnv(cfg *PipelineConfig) {
	if v := getEnvInt("PIPELINE_BUFFER_CAPACITY"); v != 0 {
		cfg.BufferCapacity = v
	}
	if v := getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
	if v := getEnvDuration("PIPELINE_DRAIN_TIMEOUT"); v != 0 {
		cfg.DrainTimeout = v
	}
	if v := getEnvDuration("PIPELINE_ERROR_BACKOFF"); v != 0 {
		cfg.ErrorBackoff = v
	}
	if v, ok := getEnvBool("PIPELINE_HEALTHCHECK"); ok {
		cfg.Healthcheck = v
	}
	if v, ok := getEnvBool("PIPELINE_HEALTHCHECK_FAIL_FAST"); ok {
		cfg.HealthcheckFailFast = v
	}
	if v := getEnvDuration("PIPELINE_HEALTHCHECK_TIMEOUT"); v != 0 {
		cfg.HealthcheckTimeout = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	v, _ := lookupEnvInt(key)
	return v
}

func lookupEnvInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return intValue, true
}

func getEnvFloat(key string) float64 {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

// getEnvBool reports the parsed value and whether the variable was set to a
// valid boolean
func getEnvBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}

// getEnvList splits a comma separated variable, dropping empty elements
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
