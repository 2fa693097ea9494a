// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// mtlsConfig configures mutual TLS for [App.RunMTLS]. Client certificates
// are required and validated against the CA pool; the pipeline's mTLS
// identity source then derives the caller identity from the verified
// certificate.
type mtlsConfig struct {
	serverCert         tls.Certificate
	clientCAs          *x509.CertPool
	minVersion         uint16
	authorize          func(*x509.Certificate) bool
	getConfigForClient func(*tls.ClientHelloInfo) (*tls.Config, error)
}

// MTLSOption configures RunMTLS.
type MTLSOption func(*mtlsConfig)

func newMTLSConfig(serverCert tls.Certificate, opts ...MTLSOption) *mtlsConfig {
	cfg := &mtlsConfig{
		serverCert: serverCert,
		minVersion: tls.VersionTLS13,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithClientCAs sets the CA pool that client certificates must chain to.
// Required.
func WithClientCAs(pool *x509.CertPool) MTLSOption {
	return func(cfg *mtlsConfig) {
		cfg.clientCAs = pool
	}
}

// WithMinTLSVersion lowers the minimum accepted TLS version from the 1.3
// default. Use only when older clients cannot be upgraded.
func WithMinTLSVersion(version uint16) MTLSOption {
	return func(cfg *mtlsConfig) {
		cfg.minVersion = version
	}
}

// WithCertAuthorize adds a connection-time gate over verified client
// certificates. Returning false closes the connection before any request
// on it is served. Identity attribution stays with the pipeline; this is
// a coarse allow/deny only.
//
//	app.WithCertAuthorize(func(cert *x509.Certificate) bool {
//	    for _, uri := range cert.URIs {
//	        if uri.Scheme == "spiffe" && uri.Host == "prod.example.org" {
//	            return true
//	        }
//	    }
//	    return false
//	})
func WithCertAuthorize(fn func(*x509.Certificate) bool) MTLSOption {
	return func(cfg *mtlsConfig) {
		cfg.authorize = fn
	}
}

// WithConfigForClient sets a per-client TLS config callback, typically for
// certificate hot-reload.
func WithConfigForClient(fn func(*tls.ClientHelloInfo) (*tls.Config, error)) MTLSOption {
	return func(cfg *mtlsConfig) {
		cfg.getConfigForClient = fn
	}
}

func (cfg *mtlsConfig) validate() error {
	if len(cfg.serverCert.Certificate) == 0 {
		return fmt.Errorf("server certificate is required for mTLS")
	}
	if cfg.clientCAs == nil {
		return fmt.Errorf("client CA pool is required for mTLS (use WithClientCAs)")
	}

	return nil
}

func (cfg *mtlsConfig) buildTLSConfig() *tls.Config {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cfg.serverCert},
		ClientCAs:    cfg.clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   cfg.minVersion,
	}

	// TLS 1.3 suites are fixed; explicit suites matter only below it.
	if tlsConfig.MinVersion < tls.VersionTLS13 {
		tlsConfig.CipherSuites = []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		}
	}

	if cfg.getConfigForClient != nil {
		tlsConfig.GetConfigForClient = cfg.getConfigForClient
	}

	return tlsConfig
}

// authorizeConn applies the certificate gate to an established connection.
// Connections without a peer certificate pass; the TLS layer has already
// rejected unverifiable clients.
func (cfg *mtlsConfig) authorizeConn(conn net.Conn) bool {
	if cfg.authorize == nil {
		return true
	}

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return true
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return true
	}

	return cfg.authorize(state.PeerCertificates[0])
}
