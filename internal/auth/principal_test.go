package auth

import (
	"context"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Issue(Principal{UserID: "u-1", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "u-1", p.UserID)
	require.True(t, p.IsAdmin())
}

func TestVerifierRejectsWrongSecretAndExpired(t *testing.T) {
	issuer := NewVerifier("other")
	tok, err := issuer.Issue(Principal{UserID: "u-1", Role: RoleUser}, time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewVerifier("secret").Issue(Principal{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("secret").Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierDefaultsRoleAndRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-2"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, RoleUser, p.Role)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "ADMIN"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(noSub)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u-1", Role: RoleSeller})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	require.True(t, p.HasRole(RoleAdmin, RoleSeller))
	require.False(t, p.HasRole(RoleAdmin))
}
