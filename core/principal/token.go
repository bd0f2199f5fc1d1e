package principal

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shop-pricing/internal/errors"
)

// Claims are the JWT claims a pricing token carries
type Claims struct {
	TenantID    string   `json:"tenant_id"`
	Role        Role     `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthority issues and verifies HS256 bearer tokens
type TokenAuthority struct {
	secret []byte
	issuer string
}

// NewTokenAuthority creates a token authority. An empty issuer disables
// issuer checking.
func NewTokenAuthority(secret, issuer string) (*TokenAuthority, error) {
	if secret == "" {
		return nil, errors.Config("jwt secret is required", nil)
	}
	return &TokenAuthority{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for p valid for ttl
func (a *TokenAuthority) Issue(p Principal, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		TenantID:    p.TenantID,
		Role:        p.Role,
		Permissions: p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Internal("failed to sign token", err)
	}
	return signed, nil
}

// Resolve verifies a bearer token and returns the principal it names
func (a *TokenAuthority) Resolve(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthenticated("unexpected signing method", nil).WithContext("alg", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, errors.Unauthenticated("invalid token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, errors.Unauthenticated("invalid token claims", nil)
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return Principal{}, errors.Unauthenticated("token must name a subject and a tenant", nil)
	}

	return Principal{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}, nil
}
