package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/infra/config"
)

var (
	// ErrInvalidToken indicates the gateway token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid gateway token")
	// ErrExpiredToken indicates the gateway token is past its expiry.
	ErrExpiredToken = errors.New("gateway token expired")
)

// GatewayClaims is the claim set minted by the upstream authentication
// gateway. The service reads the tenant and role flags and nothing else;
// identity management stays upstream.
type GatewayClaims struct {
	TenantID    string `json:"tenant_id"`
	IsChampion  bool   `json:"champion"`
	IsSuperUser bool   `json:"super_user"`
	jwt.RegisteredClaims
}

// GatewayTokenVerifier checks gateway-issued HMAC tokens and extracts the
// actor context.
type GatewayTokenVerifier struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

// NewGatewayTokenVerifier constructs a verifier from auth settings.
func NewGatewayTokenVerifier(cfg config.AuthSettings) (*GatewayTokenVerifier, error) {
	if cfg.GatewaySecret == "" {
		return nil, fmt.Errorf("gateway secret is required")
	}
	return &GatewayTokenVerifier{
		secret:    []byte(cfg.GatewaySecret),
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
	}, nil
}

// Verify parses the token and returns the actor it asserts.
func (v *GatewayTokenVerifier) Verify(tokenString string) (domain.Actor, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.clockSkew > 0 {
		options = append(options, jwt.WithLeeway(v.clockSkew))
	}

	var claims GatewayClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, ErrExpiredToken
		}
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	if claims.TenantID == "" || claims.Subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing tenant or subject", ErrInvalidToken)
	}

	return domain.Actor{
		ID:          claims.Subject,
		TenantID:    claims.TenantID,
		IsChampion:  claims.IsChampion,
		IsSuperUser: claims.IsSuperUser,
	}, nil
}
