package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFlags_Redis(t *testing.T) {
	cfg := defaultConfig()
	fs := newFlagSet("test", cfg)

	err := fs.Parse([]string{
		"--redis-address=flag-redis:6379",
		"--redis-stream=flag-stream",
		"--redis-consumer", "flag-consumer",
		"--redis-batch-size=200",
		"--redis-block-timeout=8s",
		"--redis-drop-failed",
	})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Redis.Address != "flag-redis:6379" {
		t.Errorf("Address = %s; want flag-redis:6379", cfg.Redis.Address)
	}
	if cfg.Redis.Stream != "flag-stream" {
		t.Errorf("Stream = %s; want flag-stream", cfg.Redis.Stream)
	}
	if cfg.Redis.Consumer != "flag-consumer" {
		t.Errorf("Consumer = %s; want flag-consumer", cfg.Redis.Consumer)
	}
	if cfg.Redis.BatchSize != 200 {
		t.Errorf("BatchSize = %d; want 200", cfg.Redis.BatchSize)
	}
	if cfg.Redis.BlockTimeout != 8*time.Second {
		t.Errorf("BlockTimeout = %v; want 8s", cfg.Redis.BlockTimeout)
	}
	if !cfg.Redis.DropFailed {
		t.Error("DropFailed = false; want true")
	}
}

func TestFlags_MQTT(t *testing.T) {
	cfg := defaultConfig()
	fs := newFlagSet("test", cfg)

	err := fs.Parse([]string{
		"--mqtt-broker=tcp://flag-mqtt:1883",
		"--mqtt-client-id=flag-client",
		"--mqtt-qos=2",
		"--mqtt-tls-enabled=true",
		"--mqtt-receipt-topic=receipts",
	})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://flag-mqtt:1883" {
		t.Errorf("Broker = %s; want tcp://flag-mqtt:1883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ClientID != "flag-client" {
		t.Errorf("ClientID = %s; want flag-client", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("QoS = %d; want 2", cfg.MQTT.QoS)
	}
	if !cfg.MQTT.TLSEnabled {
		t.Error("TLSEnabled = false; want true")
	}
	if cfg.MQTT.ReceiptTopic != "receipts" {
		t.Errorf("ReceiptTopic = %s; want receipts", cfg.MQTT.ReceiptTopic)
	}
}

func TestFlags_Sink(t *testing.T) {
	cfg := defaultConfig()
	fs := newFlagSet("test", cfg)

	err := fs.Parse([]string{
		"--sink-endpoint=http://localhost:8080/v1/input",
		"--sink-encoding=text",
		"--sink-except-fields=password,token",
		"--sink-compression=gzip",
		"--sink-batch-max-events=1",
		"--sink-request-retry-multiplier=3",
		"--sink-request-rate-limit-num=100",
	})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Sink.Endpoint != "http://localhost:8080/v1/input" {
		t.Errorf("Endpoint = %s", cfg.Sink.Endpoint)
	}
	if cfg.Sink.Encoding.Codec != "text" {
		t.Errorf("Codec = %s; want text", cfg.Sink.Encoding.Codec)
	}
	if want := []string{"password", "token"}; !reflect.DeepEqual(cfg.Sink.Encoding.ExceptFields, want) {
		t.Errorf("ExceptFields = %v; want %v", cfg.Sink.Encoding.ExceptFields, want)
	}
	if cfg.Sink.Compression.Type != "gzip" {
		t.Errorf("Compression.Type = %s; want gzip", cfg.Sink.Compression.Type)
	}
	if cfg.Sink.Batch.MaxEvents != 1 {
		t.Errorf("MaxEvents = %d; want 1", cfg.Sink.Batch.MaxEvents)
	}
	if cfg.Sink.Request.RetryMultiplier != 3 {
		t.Errorf("RetryMultiplier = %v; want 3", cfg.Sink.Request.RetryMultiplier)
	}
	if cfg.Sink.Request.RateLimitNum != 100 {
		t.Errorf("RateLimitNum = %d; want 100", cfg.Sink.Request.RateLimitNum)
	}
}

func TestFlags_UnsetKeepLowerLayers(t *testing.T) {
	cfg := defaultConfig()
	cfg.Redis.Address = "from-env:6379"
	cfg.Pipeline.Healthcheck = false

	fs := newFlagSet("test", cfg)
	if err := fs.Parse([]string{"--pipeline-buffer-capacity=5"}); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Redis.Address != "from-env:6379" {
		t.Errorf("Address = %s; want from-env:6379", cfg.Redis.Address)
	}
	if cfg.Pipeline.Healthcheck {
		t.Error("Healthcheck flipped back to default")
	}
	if cfg.Pipeline.BufferCapacity != 5 {
		t.Errorf("BufferCapacity = %d; want 5", cfg.Pipeline.BufferCapacity)
	}
}

func TestConfigFileFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"absent", []string{"--redis-address=x"}, ""},
		{"equals form", []string{"--config=/etc/logship.yaml"}, "/etc/logship.yaml"},
		{"separate value", []string{"--redis-address", "x", "--config", "/tmp/c.yaml"}, "/tmp/c.yaml"},
		{"with help", []string{"--help", "--config=/a.yaml"}, "/a.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := configFileFromArgs(tt.args); got != tt.want {
				t.Errorf("configFileFromArgs(%v) = %q; want %q", tt.args, got, tt.want)
			}
		})
	}
}
