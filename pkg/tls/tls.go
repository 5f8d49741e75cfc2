// Package tls builds the server TLS configuration shared by the forecaster's
// HTTP API and gRPC health endpoint.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
)

// Config holds TLS certificate file paths.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Validate returns an error if TLS is enabled but the certificate or key is
// missing or unreadable.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("tls enabled but cert/key files not specified")
	}

	for _, path := range []string{c.CertFile, c.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}

// ServerConfig loads the certificate and key and returns a TLS 1.3 server
// configuration. It returns nil, nil when TLS is disabled.
func (c Config) ServerConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
