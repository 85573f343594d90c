package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSecret is returned by NewTokens when no signing secret is configured
	ErrNoSecret = errors.New("jwt secret is not configured")
	// ErrNoTenant rejects otherwise valid tokens that do not name a tenant
	ErrNoTenant = errors.New("token carries no tenant")
)

// Identity is the principal a token speaks for
type Identity struct {
	UID      int
	Username string
	Role     string
	TenantID string
}

// Claims is the token payload. The tenant travels in tid and scopes every
// read and write the caller makes.
type Claims struct {
	UID      int    `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Identity returns the principal named by c
func (c *Claims) Identity() Identity {
	return Identity{UID: c.UID, Username: c.Username, Role: c.Role, TenantID: c.TenantID}
}

// TokenOptions configures Tokens
type TokenOptions struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// Leeway tolerates clock skew between issuing and verifying hosts
	Leeway time.Duration
}

// Tokens issues and verifies the HS256 bearer tokens used by the HTTP API
// and the Socket.IO handshake
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokens creates a token issuer. A zero TTL defaults to one day.
func NewTokens(opts TokenOptions) (*Tokens, error) {
	if opts.Secret == "" {
		return nil, ErrNoSecret
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	t := &Tokens{
		secret: []byte(opts.Secret),
		issuer: opts.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	t.parser = jwt.NewParser(parserOpts...)
	return t, nil
}

// Issue signs a token for id and reports when it expires
func (t *Tokens) Issue(id Identity) (string, time.Time, error) {
	if id.TenantID == "" {
		return "", time.Time{}, ErrNoTenant
	}
	now := t.now()
	expireAt := now.Add(t.ttl)

	claims := Claims{
		UID:      id.UID,
		Username: id.Username,
		Role:     id.Role,
		TenantID: id.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expireAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expireAt, nil
}

// Parse verifies raw and returns its claims. Expired tokens fail with an
// error matching jwt.ErrTokenExpired; tokens without a tenant with ErrNoTenant.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.TenantID == "" {
		return nil, ErrNoTenant
	}
	return claims, nil
}
