package auth

import "net/http"

// NoneProvider is the disabled-auth escape hatch (§4.3): every request
// resolves to a fixed anonymous identity.
type NoneProvider struct {
	identity Identity
}

// NewNoneProvider builds the anonymous sentinel identity. anonymousUserID
// defaults to "anonymous" if empty.
func NewNoneProvider(anonymousUserID string) *NoneProvider {
	if anonymousUserID == "" {
		anonymousUserID = "anonymous"
	}
	return &NoneProvider{identity: Identity{ExternalID: anonymousUserID, Roles: []string{"anonymous"}}}
}

func (n *NoneProvider) HasValidAuth(_ *http.Request) bool { return true }

func (n *NoneProvider) ParseRequest(_ *http.Request) (Identity, error) {
	return n.identity, nil
}
