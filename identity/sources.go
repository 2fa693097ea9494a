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

package identity

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Source extracts a caller identity from an incoming request. Sources report
// (Caller, true, nil) on success, (_, false, nil) when the request carries no
// credential for this source, and an error when a credential is present but
// invalid.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Extract attempts to derive a caller from the request.
	Extract(r *Request) (Caller, bool, error)
}

// Request is the read-only view of an HTTP request that identity sources
// inspect. It decouples the sources from the transport adapter.
type Request struct {
	// Header is the request header multimap.
	Header http.Header

	// TLS is the connection state when the request arrived over TLS;
	// nil otherwise.
	TLS *tls.ConnectionState
}

// Chain tries each source in order and returns the first extracted identity.
// Absence from every source yields the anonymous caller; an invalid
// credential aborts the chain with its error.
type Chain struct {
	sources []Source
}

// NewChain builds a chain over the given sources. A nil or empty chain
// always yields anonymous.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// DefaultChain is the standard source order: mTLS peer certificate, bearer
// token, API-key header.
func DefaultChain(opts ...ChainOption) *Chain {
	cfg := chainConfig{
		apiKeyHeader: "X-API-Key",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sources := []Source{NewMTLSSource()}
	if cfg.jwtKeyFunc != nil {
		sources = append(sources, NewBearerSource(cfg.jwtKeyFunc))
	}
	sources = append(sources, NewAPIKeySource(cfg.apiKeyHeader, cfg.apiKeyScopes))

	return NewChain(sources...)
}

// ChainOption configures DefaultChain.
type ChainOption func(*chainConfig)

type chainConfig struct {
	jwtKeyFunc   jwt.Keyfunc
	apiKeyHeader string
	apiKeyScopes func(keyID string) []string
}

// WithJWTSecret verifies bearer tokens with an HMAC secret.
func WithJWTSecret(secret []byte) ChainOption {
	return func(c *chainConfig) {
		c.jwtKeyFunc = func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}

			return secret, nil
		}
	}
}

// WithJWTKeyFunc verifies bearer tokens with a custom key resolver (for RSA
// keys, JWKS endpoints, and similar).
func WithJWTKeyFunc(fn jwt.Keyfunc) ChainOption {
	return func(c *chainConfig) { c.jwtKeyFunc = fn }
}

// WithAPIKeyHeader overrides the header the API-key source reads
// (default X-API-Key).
func WithAPIKeyHeader(name string) ChainOption {
	return func(c *chainConfig) { c.apiKeyHeader = name }
}

// WithAPIKeyScopes supplies the scope lookup for API keys. Without it, keys
// extract with no scopes.
func WithAPIKeyScopes(fn func(keyID string) []string) ChainOption {
	return func(c *chainConfig) { c.apiKeyScopes = fn }
}

// Extract runs the chain. The error carries the name of the failing source.
func (c *Chain) Extract(r *Request) (Caller, error) {
	if c == nil {
		return Anonymous(), nil
	}

	for _, src := range c.sources {
		caller, found, err := src.Extract(r)
		if err != nil {
			return Anonymous(), fmt.Errorf("identity source %s: %w", src.Name(), err)
		}
		if found {
			return caller, nil
		}
	}

	return Anonymous(), nil
}

// mtlsSource derives a service principal from the mTLS peer certificate.
// The SPIFFE ID is taken from the certificate's URI SANs; a certificate
// without one falls back to the subject common name as the workload path in
// the "local" trust domain.
type mtlsSource struct{}

// NewMTLSSource returns the mTLS peer-certificate source.
func NewMTLSSource() Source { return mtlsSource{} }

func (mtlsSource) Name() string { return "mtls" }

func (mtlsSource) Extract(r *Request) (Caller, bool, error) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return Caller{}, false, nil
	}

	cert := r.TLS.PeerCertificates[0]
	if caller, ok := spiffeFromCert(cert); ok {
		return caller, true, nil
	}

	if cn := cert.Subject.CommonName; cn != "" {
		return Service("local", cn), true, nil
	}

	return Caller{}, false, nil
}

// spiffeFromCert scans the certificate URI SANs for a SPIFFE ID.
func spiffeFromCert(cert *x509.Certificate) (Caller, bool) {
	for _, uri := range cert.URIs {
		if uri.Scheme != "spiffe" {
			continue
		}
		if caller, err := ParseSPIFFE(uri.String()); err == nil {
			return caller, true
		}
	}

	return Caller{}, false
}

// bearerSource derives a user identity from an Authorization: Bearer token.
type bearerSource struct {
	keyFunc jwt.Keyfunc
}

// NewBearerSource returns a bearer-token source verifying signatures with
// keyFunc.
func NewBearerSource(keyFunc jwt.Keyfunc) Source {
	return &bearerSource{keyFunc: keyFunc}
}

func (*bearerSource) Name() string { return "bearer" }

func (s *bearerSource) Extract(r *Request) (Caller, bool, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return Caller{}, false, nil
	}

	parsed, err := jwt.Parse(token, s.keyFunc)
	if err != nil {
		return Caller{}, false, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Caller{}, false, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Caller{}, false, fmt.Errorf("token has no subject")
	}

	return User(sub, stringClaims(claims), rolesFromClaims(claims)), true, nil
}

// stringClaims flattens scalar claims into the caller's claim map. Structured
// claims (roles, aud, nested objects) are not flattened; roles are carried
// separately.
func stringClaims(claims jwt.MapClaims) map[string]string {
	out := make(map[string]string, len(claims))
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		}
	}

	return out
}

// rolesFromClaims reads the "roles" claim as either a string list or a
// space-delimited string.
func rolesFromClaims(claims jwt.MapClaims) []string {
	switch v := claims["roles"].(type) {
	case []any:
		roles := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}

		return roles
	case string:
		if v == "" {
			return nil
		}

		return strings.Fields(v)
	default:
		return nil
	}
}

// apiKeySource derives an api-key identity from a configured header.
type apiKeySource struct {
	header string
	scopes func(keyID string) []string
}

// NewAPIKeySource returns an API-key source reading the given header. The
// scopes function may be nil.
func NewAPIKeySource(header string, scopes func(keyID string) []string) Source {
	if header == "" {
		header = "X-API-Key"
	}

	return &apiKeySource{header: header, scopes: scopes}
}

func (s *apiKeySource) Name() string { return "api-key" }

func (s *apiKeySource) Extract(r *Request) (Caller, bool, error) {
	key := r.Header.Get(s.header)
	if key == "" {
		return Caller{}, false, nil
	}

	var scopes []string
	if s.scopes != nil {
		scopes = s.scopes(key)
	}

	return APIKey(key, scopes), true, nil
}
