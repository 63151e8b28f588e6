package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSet_Rotate(t *testing.T) {
	held := TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", IDToken: "id-1"}

	t.Run("keeps previous refresh and ID tokens when omitted", func(t *testing.T) {
		next := held.Rotate(&TokenResponse{AccessToken: "at-2"})
		assert.Equal(t, TokenSet{AccessToken: "at-2", RefreshToken: "rt-1", IDToken: "id-1"}, next)
	})

	t.Run("replaces rolled tokens", func(t *testing.T) {
		next := held.Rotate(&TokenResponse{AccessToken: "at-2", RefreshToken: "rt-2", IDToken: "id-2"})
		assert.Equal(t, TokenSet{AccessToken: "at-2", RefreshToken: "rt-2", IDToken: "id-2"}, next)
	})
}

func TestTokenSet_IsEmpty(t *testing.T) {
	assert.True(t, TokenSet{}.IsEmpty())
	assert.False(t, TokenSet{IDToken: "id"}.IsEmpty())
}

func TestTokenSet_ToOAuth2Token(t *testing.T) {
	token := TokenSet{AccessToken: "at", RefreshToken: "rt", IDToken: "id"}.ToOAuth2Token()
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.Equal(t, "id", token.Extra("id_token"))
}

func TestTokenResponse_Expiry(t *testing.T) {
	assert.True(t, (&TokenResponse{}).Expiry().IsZero())

	expiry := (&TokenResponse{ExpiresIn: 60}).Expiry()
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiry, 5*time.Second)
}

func TestScopeList(t *testing.T) {
	assert.Nil(t, ScopeList(""))
	assert.Equal(t, []string{"openid", "offline_access"}, ScopeList(" openid  offline_access "))
}

func TestParseIDTokenClaims(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"name":  "Example User",
		"iss":   "https://login.example.com",
		"exp":   expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("not-verified"))
	require.NoError(t, err)

	claims, err := ParseIDTokenClaims(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "Example User", claims.Name)
	assert.Equal(t, "https://login.example.com", claims.Issuer)
	assert.True(t, expiry.Equal(claims.ExpiresAt))

	_, err = ParseIDTokenClaims("")
	assert.Error(t, err)

	_, err = ParseIDTokenClaims("not-a-jwt")
	assert.Error(t, err)
}
