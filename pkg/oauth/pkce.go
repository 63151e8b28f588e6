package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code verifier.
	// 32 bytes provides 256 bits of entropy and encodes to 43 characters.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the OAuth state parameter.
	stateBytes = 32

	// ChallengeMethodS256 is the only PKCE method this client uses.
	ChallengeMethodS256 = "S256"
)

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept by the client and only sent to the token endpoint.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier, sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GenerateVerifier returns a new base64url-encoded code verifier built from
// 32 bytes of crypto/rand output.
//
// An error means the secure random source is unavailable, and a login cannot proceed.
func GenerateVerifier() (string, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(verifierBytes), nil
}

// ChallengeFor derives the S256 code challenge for a verifier:
// BASE64URL(SHA256(verifier)) without padding.
func ChallengeFor(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GeneratePKCE generates a new verifier together with its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       ChallengeFor(verifier),
		CodeChallengeMethod: ChallengeMethodS256,
	}, nil
}

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the request that started it.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
