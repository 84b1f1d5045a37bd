package config

import (
	"github.com/spf13/pflag"
)

// flagConfigFile names the flag holding the YAML file path
const flagConfigFile = "config"

// newFlagSet registers every command line flag bound directly to cfg.
// Each flag defaults to the value cfg already holds, so unset flags leave
// the lower layers untouched.
func newFlagSet(name string, cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String(flagConfigFile, "", "Path to a YAML configuration file (env "+EnvConfigFile+")")
	fs.StringVar(&cfg.Source.Type, "source", cfg.Source.Type, "Event source: redis or mqtt")

	registerRedisFlags(fs, &cfg.Redis)
	registerMQTTFlags(fs, &cfg.MQTT)
	registerSinkFlags(fs, &cfg.Sink)
	registerPipelineFlags(fs, &cfg.Pipeline)

	fs.StringVar(&cfg.Metrics.Address, "metrics-address", cfg.Metrics.Address, "Prometheus listen address (empty disables)")
	return fs
}

func registerRedisFlags(fs *pflag.FlagSet, cfg *RedisConfig) {
	fs.StringVar(&cfg.Address, "redis-address", cfg.Address, "Redis address")
	fs.StringVar(&cfg.Stream, "redis-stream", cfg.Stream, "Redis stream name (empty for multi-stream mode)")
	fs.StringVar(&cfg.Consumer, "redis-consumer", cfg.Consumer, "Redis consumer name (empty to generate)")
	fs.StringVar(&cfg.Group, "redis-group", cfg.Group, "Redis consumer group")
	fs.IntVar(&cfg.BatchSize, "redis-batch-size", cfg.BatchSize, "Redis read batch size")
	fs.Int64Var(&cfg.MaxDeliveries, "redis-max-deliveries", cfg.MaxDeliveries, "Drop entries delivered more often than this (0 disables)")
	fs.BoolVar(&cfg.DropFailed, "redis-drop-failed", cfg.DropFailed, "Delete entries of permanently failed batches")
	fs.DurationVar(&cfg.BlockTimeout, "redis-block-timeout", cfg.BlockTimeout, "Redis block timeout")
	fs.DurationVar(&cfg.ClaimIdle, "redis-claim-idle", cfg.ClaimIdle, "Redis claim idle time")
	fs.DurationVar(&cfg.ClaimInterval, "redis-claim-interval", cfg.ClaimInterval, "Interval between idle entry reclaims")
	fs.DurationVar(&cfg.ConsumerIdleTimeout, "redis-consumer-idle-timeout", cfg.ConsumerIdleTimeout, "Redis consumer idle timeout")
	fs.DurationVar(&cfg.CleanupInterval, "redis-cleanup-interval", cfg.CleanupInterval, "Redis cleanup interval")
	fs.DurationVar(&cfg.RefreshInterval, "redis-refresh-interval", cfg.RefreshInterval, "Stream discovery interval")
	fs.DurationVar(&cfg.DialTimeout, "redis-dial-timeout", cfg.DialTimeout, "Redis dial timeout")
	fs.DurationVar(&cfg.ReadTimeout, "redis-read-timeout", cfg.ReadTimeout, "Redis read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "redis-write-timeout", cfg.WriteTimeout, "Redis write timeout")
	fs.DurationVar(&cfg.PingTimeout, "redis-ping-timeout", cfg.PingTimeout, "Redis ping timeout")
}

func registerMQTTFlags(fs *pflag.FlagSet, cfg *MQTTConfig) {
	fs.StringVar(&cfg.Broker, "mqtt-broker", cfg.Broker, "MQTT broker URL")
	fs.StringVar(&cfg.ClientID, "mqtt-client-id", cfg.ClientID, "MQTT client ID")
	fs.StringVar(&cfg.Topic, "mqtt-topic", cfg.Topic, "MQTT topic to consume events from")
	fs.StringVar(&cfg.ReceiptTopic, "mqtt-receipt-topic", cfg.ReceiptTopic, "MQTT topic for batch delivery receipts")
	fs.Uint8Var(&cfg.QoS, "mqtt-qos", cfg.QoS, "MQTT QoS (0, 1, or 2)")
	fs.DurationVar(&cfg.ConnectTimeout, "mqtt-connect-timeout", cfg.ConnectTimeout, "MQTT connect timeout")
	fs.DurationVar(&cfg.WriteTimeout, "mqtt-write-timeout", cfg.WriteTimeout, "MQTT write timeout")
	fs.DurationVar(&cfg.MaxReconnectInterval, "mqtt-max-reconnect-interval", cfg.MaxReconnectInterval, "MQTT max reconnect interval")
	fs.DurationVar(&cfg.SubscribeTimeout, "mqtt-subscribe-timeout", cfg.SubscribeTimeout, "MQTT subscribe timeout")
	fs.UintVar(&cfg.DisconnectTimeout, "mqtt-disconnect-timeout", cfg.DisconnectTimeout, "MQTT disconnect timeout (ms)")
	fs.BoolVar(&cfg.TLSEnabled, "mqtt-tls-enabled", cfg.TLSEnabled, "Enable MQTT TLS")
	fs.StringVar(&cfg.CACert, "mqtt-ca-cert", cfg.CACert, "MQTT CA certificate path")
	fs.StringVar(&cfg.ClientCert, "mqtt-client-cert", cfg.ClientCert, "MQTT client certificate path")
	fs.StringVar(&cfg.ClientKey, "mqtt-client-key", cfg.ClientKey, "MQTT client key path")
	fs.BoolVar(&cfg.InsecureSkip, "mqtt-tls-insecure-skip", cfg.InsecureSkip, "Skip MQTT TLS verification")
	fs.BoolVar(&cfg.UseCertCNPrefix, "mqtt-use-cert-cn-prefix", cfg.UseCertCNPrefix, "Prefix topics with client cert CN")
}

func registerSinkFlags(fs *pflag.FlagSet, cfg *SinkConfig) {
	fs.StringVar(&cfg.Endpoint, "sink-endpoint", cfg.Endpoint, "Log intake URL")
	fs.StringVar(&cfg.APIKey, "sink-api-key", cfg.APIKey, "Log intake API key")
	fs.StringVar(&cfg.Encoding.Codec, "sink-encoding", cfg.Encoding.Codec, "Body encoding: json or text")
	fs.StringSliceVar(&cfg.Encoding.OnlyFields, "sink-only-fields", cfg.Encoding.OnlyFields, "Keep only these event fields")
	fs.StringSliceVar(&cfg.Encoding.ExceptFields, "sink-except-fields", cfg.Encoding.ExceptFields, "Remove these event fields")
	fs.StringVar(&cfg.Encoding.TimestampFormat, "sink-timestamp-format", cfg.Encoding.TimestampFormat, "Timestamp format: rfc3339 or unix")
	fs.StringVar(&cfg.Compression.Type, "sink-compression", cfg.Compression.Type, "Body compression: none or gzip")
	fs.IntVar(&cfg.Compression.Level, "sink-compression-level", cfg.Compression.Level, "Gzip level 1-9 (0 for default)")

	fs.IntVar(&cfg.Batch.MaxEvents, "sink-batch-max-events", cfg.Batch.MaxEvents, "Maximum events per request")
	fs.IntVar(&cfg.Batch.MaxBytes, "sink-batch-max-bytes", cfg.Batch.MaxBytes, "Maximum request body size")
	fs.DurationVar(&cfg.Batch.Timeout, "sink-batch-timeout", cfg.Batch.Timeout, "Maximum time a batch waits before sending")

	fs.IntVar(&cfg.Request.Concurrency, "sink-request-concurrency", cfg.Request.Concurrency, "Maximum requests in flight")
	fs.DurationVar(&cfg.Request.Timeout, "sink-request-timeout", cfg.Request.Timeout, "Timeout of a single attempt")
	fs.IntVar(&cfg.Request.RetryAttempts, "sink-request-retry-attempts", cfg.Request.RetryAttempts, "Retries after the first attempt")
	fs.DurationVar(&cfg.Request.RetryInitialBackoff, "sink-request-retry-initial-backoff", cfg.Request.RetryInitialBackoff, "First retry delay")
	fs.Float64Var(&cfg.Request.RetryMultiplier, "sink-request-retry-multiplier", cfg.Request.RetryMultiplier, "Backoff growth factor")
	fs.DurationVar(&cfg.Request.RetryMaxBackoff, "sink-request-retry-max-backoff", cfg.Request.RetryMaxBackoff, "Backoff cap")
	fs.Float64Var(&cfg.Request.RetryJitter, "sink-request-retry-jitter", cfg.Request.RetryJitter, "Backoff jitter fraction (0-1)")
	fs.IntVar(&cfg.Request.RateLimitNum, "sink-request-rate-limit-num", cfg.Request.RateLimitNum, "Requests allowed per rate limit window (0 disables)")
	fs.DurationVar(&cfg.Request.RateLimitDuration, "sink-request-rate-limit-duration", cfg.Request.RateLimitDuration, "Rate limit window")

	fs.StringVar(&cfg.TLS.CACert, "sink-tls-ca-cert", cfg.TLS.CACert, "Sink CA certificate path")
	fs.StringVar(&cfg.TLS.ClientCert, "sink-tls-client-cert", cfg.TLS.ClientCert, "Sink client certificate path")
	fs.StringVar(&cfg.TLS.ClientKey, "sink-tls-client-key", cfg.TLS.ClientKey, "Sink client key path")
	fs.BoolVar(&cfg.TLS.InsecureSkip, "sink-tls-insecure-skip", cfg.TLS.InsecureSkip, "Skip sink TLS verification")
}

func registerPipelineFlags(fs *pflag.FlagSet, cfg *PipelineConfig) {
	fs.IntVar(&cfg.BufferCapacity, "pipeline-buffer-capacity", cfg.BufferCapacity, "Event channel capacity")
	fs.DurationVar(&cfg.ShutdownTimeout, "pipeline-shutdown-timeout", cfg.ShutdownTimeout, "Pipeline shutdown timeout")
	fs.DurationVar(&cfg.DrainTimeout, "pipeline-drain-timeout", cfg.DrainTimeout, "Time in-flight requests get after shutdown starts")
	fs.DurationVar(&cfg.ErrorBackoff, "pipeline-error-backoff", cfg.ErrorBackoff, "Pipeline error backoff")
	fs.BoolVar(&cfg.Healthcheck, "pipeline-healthcheck", cfg.Healthcheck, "Check the destination at startup")
	fs.BoolVar(&cfg.HealthcheckFailFast, "pipeline-healthcheck-fail-fast", cfg.HealthcheckFailFast, "Exit when the startup healthcheck fails")
	fs.DurationVar(&cfg.HealthcheckTimeout, "pipeline-healthcheck-timeout", cfg.HealthcheckTimeout, "Startup healthcheck timeout")
}

// configFileFromArgs extracts --config without failing on the other flags,
// which are parsed after the file and environment layers
func configFileFromArgs(args []string) string {
	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String(flagConfigFile, "", "")
	fs.BoolP("help", "h", false, "")
	_ = fs.Parse(args)
	return *path
}
