package auth

import (
	"net/http"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

// GatewayProvider trusts an upstream gateway/proxy to have already
// authenticated the caller and to forward identity as headers (§4.3).
type GatewayProvider struct {
	userIDHeader string
	rolesHeader  string
}

// NewGatewayProvider constructs the header-trust provider. Header names
// default to x-user-id/x-user-roles per spec §4.3.
func NewGatewayProvider() *GatewayProvider {
	return &GatewayProvider{userIDHeader: "x-user-id", rolesHeader: "x-user-roles"}
}

func (g *GatewayProvider) HasValidAuth(r *http.Request) bool {
	return firstHeaderValue(r, g.userIDHeader) != ""
}

func (g *GatewayProvider) ParseRequest(r *http.Request) (Identity, error) {
	id := firstHeaderValue(r, g.userIDHeader)
	if id == "" {
		return Identity{}, twinerr.New(twinerr.Authentication, "missing x-user-id header")
	}
	return Identity{ExternalID: id, Roles: splitRoles(firstHeaderValue(r, g.rolesHeader))}, nil
}
