// Package tlsconfig builds the TLS configuration for serving the dashboard
// over HTTPS. TLS is optional; a LAN deployment commonly runs plain HTTP.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
)

// Config holds the certificate material paths.
type Config struct {
	CertPath string
	KeyPath  string
}

// Setup loads the server certificate and returns a TLS config, or nil if no
// certificate was configured.
func Setup(config *Config) (*tls.Config, error) {
	if config.CertPath == "" && config.KeyPath == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}, nil
}
