package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSSettings describes the certificates used for outbound connections
type TLSSettings struct {
	CACert       string
	ClientCert   string
	ClientKey    string
	InsecureSkip bool
}

// NewTLSConfig creates a TLS configuration from file paths. With no paths
// set the system roots are used.
func NewTLSConfig(s TLSSettings) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// Note: Enabling InsecureSkipVerify weakens TLS security and should only be used for testing.
		InsecureSkipVerify: s.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if s.CACert != "" {
		caCert, err := os.ReadFile(s.CACert) // #nosec G304 - path comes from operator configuration
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if s.ClientCert != "" || s.ClientKey != "" {
		if s.ClientCert == "" || s.ClientKey == "" {
			return nil, fmt.Errorf("client cert and key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(s.ClientCert, s.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
