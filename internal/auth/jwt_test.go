package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T, opts TokenOptions) *Tokens {
	t.Helper()
	if opts.Secret == "" {
		opts.Secret = "test-secret-key"
	}
	if opts.Issuer == "" {
		opts.Issuer = "agentos"
	}
	tokens, err := NewTokens(opts)
	require.NoError(t, err)
	return tokens
}

var alice = Identity{UID: 1, Username: "alice", Role: "admin", TenantID: "tenant-1"}

func TestIssueAndParse(t *testing.T) {
	tokens := newTestTokens(t, TokenOptions{TTL: time.Hour})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	raw, expireAt, err := tokens.Issue(alice)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, now.Add(time.Hour), expireAt)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, alice, claims.Identity())
	assert.Equal(t, "agentos", claims.Issuer)
	assert.Equal(t, "alice", claims.Subject)
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens(TokenOptions{Issuer: "agentos"})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestIssue_RequiresTenant(t *testing.T) {
	tokens := newTestTokens(t, TokenOptions{})
	_, _, err := tokens.Issue(Identity{UID: 1, Username: "alice"})
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestParse_Expiry(t *testing.T) {
	tokens := newTestTokens(t, TokenOptions{TTL: time.Hour, Leeway: time.Minute})
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	raw, _, err := tokens.Issue(alice)
	require.NoError(t, err)

	// inside the leeway the token still verifies
	tokens.now = func() time.Time { return issued.Add(time.Hour + 30*time.Second) }
	_, err = tokens.Parse(raw)
	assert.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParse_Rejects(t *testing.T) {
	tokens := newTestTokens(t, TokenOptions{})
	valid, _, err := tokens.Issue(alice)
	require.NoError(t, err)

	otherSecret := newTestTokens(t, TokenOptions{Secret: "secret-2"})
	otherIssuer := newTestTokens(t, TokenOptions{Issuer: "someone-else"})

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UID:              1,
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "agentos", ExpiresAt: future},
	}).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID:         "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "agentos"},
	}).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		TenantID:         "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "agentos", ExpiresAt: future},
	}).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		tokens *Tokens
		raw    string
		want   error
	}{
		{"garbage", tokens, "invalid.token.string", jwt.ErrTokenMalformed},
		{"wrong secret", otherSecret, valid, jwt.ErrTokenSignatureInvalid},
		{"wrong issuer", otherIssuer, valid, jwt.ErrTokenInvalidIssuer},
		{"no tenant", tokens, noTenant, ErrNoTenant},
		{"no expiry", tokens, noExpiry, jwt.ErrTokenRequiredClaimMissing},
		{"other algorithm", tokens, otherAlg, jwt.ErrTokenSignatureInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tokens.Parse(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
