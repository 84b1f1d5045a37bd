package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	cfg.Source.Type = strings.ToLower(strings.TrimSpace(cfg.Source.Type))
	cfg.Sink.Encoding.Codec = strings.ToLower(strings.TrimSpace(cfg.Sink.Encoding.Codec))
	applyConsumerName(&cfg.Redis)
	return applyTopicPrefix(cfg)
}

// applyConsumerName generates a unique consumer name when none is configured,
// so that replicas never share pending entries
func applyConsumerName(cfg *RedisConfig) {
	if cfg.Consumer != "" {
		return
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "logship"
	}
	cfg.Consumer = host + "-" + uuid.NewString()[:8]
}

// applyTopicPrefix prefixes MQTT topics with certificate CN if configured
func applyTopicPrefix(cfg *Config) error {
	if cfg.MQTT.UseCertCNPrefix && cfg.MQTT.ClientCert != "" {
		cn, err := extractCNFromCertFile(cfg.MQTT.ClientCert)
		if err != nil {
			return fmt.Errorf("failed to extract CN from certificate: %w", err)
		}
		if cfg.MQTT.Topic != "" {
			cfg.MQTT.Topic = cn + "/" + cfg.MQTT.Topic
		}
		if cfg.MQTT.ReceiptTopic != "" {
			cfg.MQTT.ReceiptTopic = cn + "/" + cfg.MQTT.ReceiptTopic
		}
	}
	return nil
}

// extractCNFromCertFile extracts the CN from a PEM certificate file
func extractCNFromCertFile(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath) // #nosec G304 - certPath is from config, not user input
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("certificate has no CN")
	}

	return cert.Subject.CommonName, nil
}
