package auth

import (
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/config"
)

// NewFromConfig builds the Provider selected by cfg.Mode_() (§4.3).
func NewFromConfig(cfg config.AuthConfig) (Provider, error) {
	switch cfg.Mode_() {
	case config.AuthModeJWT:
		return NewJWTProvider(JWTConfig{
			Secret:       cfg.JWTSecret,
			PublicKeyPEM: cfg.JWTPublicKey,
			Algorithm:    cfg.JWTAlgorithm,
			Issuer:       cfg.JWTIssuer,
			Audience:     cfg.JWTAudience,
			UserIDClaim:  cfg.JWTUserIDClaim,
			RolesClaim:   cfg.JWTRolesClaim,
		})
	case config.AuthModeNone:
		return NewNoneProvider(cfg.AnonymousUserID), nil
	default:
		return NewGatewayProvider(), nil
	}
}
