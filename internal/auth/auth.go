// Package auth implements the three polymorphic identity providers of spec
// §4.3, grounded on the teacher's pkg/auth/supabase_auth.go: parse an
// incoming request into an Identity without touching the record store
// (reconciliation is internal/user's job).
package auth

import (
	"net/http"
	"strings"
)

// Identity is the result of a successful ParseRequest: the caller's external
// user id and the role claims/headers presented with the request.
type Identity struct {
	ExternalID string
	Roles      []string
}

// HasRole reports whether the identity carries the named role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Provider is the shared contract of all three auth modes.
type Provider interface {
	// HasValidAuth reports whether r carries the credentials this mode
	// requires, without fully decoding them.
	HasValidAuth(r *http.Request) bool

	// ParseRequest extracts an Identity from r. Callers must not invoke this
	// unless HasValidAuth returned true.
	ParseRequest(r *http.Request) (Identity, error)
}

func firstHeaderValue(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if v == "" {
		return ""
	}
	// Header.Get yields the first value of a repeated header; the value is
	// only trimmed here, and comma splitting of roles is left to splitRoles.
	return strings.TrimSpace(v)
}

func splitRoles(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
