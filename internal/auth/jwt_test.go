package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synopmap/synopmap/internal/auth"
)

func newService(key string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: key})
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	token, expiresAt, err := svc.Issue("ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultExpiry), expiresAt, time.Minute)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.True(t, claims.IsAdmin())
	assert.Len(t, claims.ID, 26, "token id is a ULID")

	_, err = svc.ValidateAdmin(token)
	assert.NoError(t, err)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newService("key-one").Issue("ops", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = newService("key-two").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongAudience(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{SigningKey: "k", Audience: "other"})
	token, _, err := issuer.Issue("ops", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = newService("k").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	now := issued

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "k",
		Expiry:     time.Hour,
		Now:        func() time.Time { return now },
	})

	token, _, err := svc.Issue("ops", auth.RoleAdmin)
	require.NoError(t, err)

	now = issued.Add(2 * time.Hour)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTService_ValidateAdmin_RequiresRole(t *testing.T) {
	svc := newService("k")

	token, _, err := svc.Issue("viewer", "viewer")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.NoError(t, err)

	_, err = svc.ValidateAdmin(token)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}
