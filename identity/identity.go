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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Type tags the variant of a caller identity.
type Type string

const (
	// TypeAnonymous is an unauthenticated caller.
	TypeAnonymous Type = "anonymous"

	// TypeService is a workload identified by a SPIFFE ID from its mTLS
	// peer certificate.
	TypeService Type = "spiffe"

	// TypeUser is a human identified by a bearer token.
	TypeUser Type = "user"

	// TypeAPIKey is a caller identified by a pre-shared API key.
	TypeAPIKey Type = "api_key"
)

// Caller is the tagged identity attributed to a request. Exactly one variant
// is populated according to Type; the zero value is anonymous.
//
// The JSON shape is part of the authorization input contract and the binding
// ABI: foreign handlers receive the caller as this JSON document.
type Caller struct {
	Type Type `json:"type"`

	// ID is the full identity string: the SPIFFE URI for services, the
	// subject for users, the key id for API keys. Empty for anonymous.
	ID string `json:"id,omitempty"`

	// TrustDomain and Path decompose a SPIFFE ID
	// (spiffe://trust-domain/path). Service only.
	TrustDomain string `json:"trust_domain,omitempty"`
	Path        string `json:"path,omitempty"`

	// UserID, Claims and Roles describe a user caller.
	UserID string            `json:"user_id,omitempty"`
	Claims map[string]string `json:"claims,omitempty"`
	Roles  []string          `json:"roles,omitempty"`

	// KeyID and Scopes describe an API-key caller.
	KeyID  string   `json:"key_id,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Anonymous returns the anonymous caller.
func Anonymous() Caller {
	return Caller{Type: TypeAnonymous}
}

// Service builds a service-principal caller from a SPIFFE trust domain and
// workload path.
func Service(trustDomain, path string) Caller {
	path = "/" + strings.TrimPrefix(path, "/")

	return Caller{
		Type:        TypeService,
		ID:          "spiffe://" + trustDomain + path,
		TrustDomain: trustDomain,
		Path:        path,
	}
}

// User builds a user caller from a subject, claims, and roles.
func User(userID string, claims map[string]string, roles []string) Caller {
	return Caller{
		Type:   TypeUser,
		ID:     userID,
		UserID: userID,
		Claims: claims,
		Roles:  roles,
	}
}

// APIKey builds an api-key caller from a key id and its granted scopes.
func APIKey(keyID string, scopes []string) Caller {
	return Caller{
		Type:   TypeAPIKey,
		ID:     keyID,
		KeyID:  keyID,
		Scopes: scopes,
	}
}

// IsAnonymous reports whether the caller is unauthenticated. The zero value
// counts as anonymous.
func (c Caller) IsAnonymous() bool {
	return c.Type == TypeAnonymous || c.Type == ""
}

// IsService reports whether the caller is a SPIFFE service principal.
func (c Caller) IsService() bool { return c.Type == TypeService }

// IsUser reports whether the caller is a user.
func (c Caller) IsUser() bool { return c.Type == TypeUser }

// IsAPIKey reports whether the caller is an API key.
func (c Caller) IsAPIKey() bool { return c.Type == TypeAPIKey }

// HasRole reports whether a user caller carries the given role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// JSON serializes the caller to its canonical JSON document. The document is
// what the policy engine and the binding ABI see.
func (c Caller) JSON() []byte {
	if c.Type == "" {
		c.Type = TypeAnonymous
	}

	b, err := json.Marshal(c)
	if err != nil {
		// Caller contains only marshallable fields; keep a valid fallback anyway.
		return []byte(`{"type":"anonymous"}`)
	}

	return b
}

// String returns a compact human-readable form for logs.
func (c Caller) String() string {
	switch c.Type {
	case TypeService:
		return "service:" + c.ID
	case TypeUser:
		return "user:" + c.UserID
	case TypeAPIKey:
		return "api_key:" + c.KeyID
	default:
		return "anonymous"
	}
}

// Fingerprint writes a canonical, explicitly-ordered serialization of the
// caller to b. The output is stable across process restarts and platforms,
// so decision-cache fingerprints derived from it are stable too. Fields are
// separated by NUL to keep distinct identities from colliding on
// concatenation.
func (c Caller) Fingerprint(b *strings.Builder) {
	b.WriteString(string(c.Type))
	b.WriteByte(0)
	b.WriteString(c.ID)
	b.WriteByte(0)
	b.WriteString(c.UserID)
	b.WriteByte(0)
	b.WriteString(c.KeyID)
	b.WriteByte(0)

	// Roles and scopes are order-insensitive for caching purposes.
	roles := append([]string(nil), c.Roles...)
	sort.Strings(roles)
	for _, r := range roles {
		b.WriteString(r)
		b.WriteByte(1)
	}
	b.WriteByte(0)

	scopes := append([]string(nil), c.Scopes...)
	sort.Strings(scopes)
	for _, s := range scopes {
		b.WriteString(s)
		b.WriteByte(1)
	}
	b.WriteByte(0)
}

// ParseSPIFFE parses a spiffe://trust-domain/path URI into a service caller.
func ParseSPIFFE(id string) (Caller, error) {
	rest, ok := strings.CutPrefix(id, "spiffe://")
	if !ok {
		return Caller{}, fmt.Errorf("not a SPIFFE ID: %q", id)
	}

	domain, path, found := strings.Cut(rest, "/")
	if domain == "" {
		return Caller{}, fmt.Errorf("SPIFFE ID %q has empty trust domain", id)
	}
	if !found || path == "" {
		return Caller{}, fmt.Errorf("SPIFFE ID %q has no workload path", id)
	}

	return Service(domain, path), nil
}
