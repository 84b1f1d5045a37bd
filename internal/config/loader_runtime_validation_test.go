package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestCert(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "client.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatalf("failed to write certificate: %v", err)
	}
	return path
}

func TestApplyRuntimeValidation_WithoutCertCN(t *testing.T) {
	cfg := &Config{
		Redis: RedisConfig{Consumer: "fixed"},
		MQTT: MQTTConfig{
			Topic:           "original/events",
			ReceiptTopic:    "original/receipts",
			UseCertCNPrefix: false,
		},
	}

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v; want nil", err)
	}

	if cfg.MQTT.Topic != "original/events" {
		t.Errorf("Topic = %s; want original/events", cfg.MQTT.Topic)
	}
	if cfg.MQTT.ReceiptTopic != "original/receipts" {
		t.Errorf("ReceiptTopic = %s; want original/receipts", cfg.MQTT.ReceiptTopic)
	}
	if cfg.Redis.Consumer != "fixed" {
		t.Errorf("Consumer = %s; want fixed", cfg.Redis.Consumer)
	}
}

func TestApplyRuntimeValidation_WithCertCN(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			Topic:           "events",
			ReceiptTopic:    "receipts",
			UseCertCNPrefix: true,
			ClientCert:      writeTestCert(t, "edge-01"),
		},
	}

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v", err)
	}
	if cfg.MQTT.Topic != "edge-01/events" {
		t.Errorf("Topic = %s; want edge-01/events", cfg.MQTT.Topic)
	}
	if cfg.MQTT.ReceiptTopic != "edge-01/receipts" {
		t.Errorf("ReceiptTopic = %s; want edge-01/receipts", cfg.MQTT.ReceiptTopic)
	}
}

func TestApplyRuntimeValidation_EmptyReceiptTopicStaysEmpty(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			Topic:           "events",
			UseCertCNPrefix: true,
			ClientCert:      writeTestCert(t, "edge-02"),
		},
	}

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v", err)
	}
	if cfg.MQTT.ReceiptTopic != "" {
		t.Errorf("ReceiptTopic = %s; want empty", cfg.MQTT.ReceiptTopic)
	}
}

func TestApplyRuntimeValidation_MissingCert(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			Topic:           "original/events",
			UseCertCNPrefix: true,
			ClientCert:      "/nonexistent/cert.pem",
		},
	}

	if err := applyRuntimeValidation(cfg); err == nil {
		t.Error("applyRuntimeValidation() error = nil; want error for missing cert")
	}
}

func TestApplyRuntimeValidation_Normalizes(t *testing.T) {
	cfg := &Config{
		Source: SourceConfig{Type: " MQTT "},
		Sink:   SinkConfig{Encoding: EncodingConfig{Codec: "Json"}},
	}
	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v", err)
	}
	if cfg.Source.Type != SourceMQTT {
		t.Errorf("Source.Type = %q; want mqtt", cfg.Source.Type)
	}
	if cfg.Sink.Encoding.Codec != "json" {
		t.Errorf("Codec = %q; want json", cfg.Sink.Encoding.Codec)
	}
}

func TestApplyConsumerName(t *testing.T) {
	a := RedisConfig{}
	b := RedisConfig{}
	applyConsumerName(&a)
	applyConsumerName(&b)

	if a.Consumer == "" || b.Consumer == "" {
		t.Fatal("consumer name not generated")
	}
	if a.Consumer == b.Consumer {
		t.Errorf("generated consumer names collide: %s", a.Consumer)
	}
	if host, err := os.Hostname(); err == nil && !strings.HasPrefix(a.Consumer, host+"-") {
		t.Errorf("Consumer = %s; want prefix %s-", a.Consumer, host)
	}
}

func TestExtractCNFromCertFile_InvalidCert(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "invalid-cert.pem")
	if err := os.WriteFile(certPath, []byte("invalid cert content"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := extractCNFromCertFile(certPath); err == nil {
		t.Error("extractCNFromCertFile() error = nil; want error for invalid cert")
	}
}

func TestExtractCNFromCertFile_NoCN(t *testing.T) {
	if _, err := extractCNFromCertFile(writeTestCert(t, "")); err == nil {
		t.Error("extractCNFromCertFile() error = nil; want error for empty CN")
	}
}
