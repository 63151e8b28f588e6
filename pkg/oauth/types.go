package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScope is requested when no scope is configured.
const DefaultScope = "openid profile email offline_access"

// TokenSet is the token triple held by a signed-in installation.
// An empty string means the token is absent.
type TokenSet struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
}

// IsEmpty reports whether no token is held at all.
func (t TokenSet) IsEmpty() bool {
	return t.AccessToken == "" && t.RefreshToken == "" && t.IDToken == ""
}

// Rotate applies a refresh response. The access token is always replaced;
// refresh and ID tokens are replaced only when the server issued new ones.
func (t TokenSet) Rotate(resp *TokenResponse) TokenSet {
	next := TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
	}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	if resp.IDToken != "" {
		next.IDToken = resp.IDToken
	}
	return next
}

// ToOAuth2Token converts the set for use with golang.org/x/oauth2 transports.
func (t TokenSet) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// TokenResponse is a successful token endpoint response (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenSet returns the full token triple issued by this response.
func (r *TokenResponse) TokenSet() TokenSet {
	return TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
	}
}

// Expiry returns the absolute expiry of the access token, or the zero time
// when the server did not say.
func (r *TokenResponse) Expiry() time.Time {
	if r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
}

// Metadata holds the authorization server endpoints the authenticator needs.
// It is immutable once discovered.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is where the browser is sent to sign in.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint serves the authorization_code and refresh_token grants.
	TokenEndpoint string `json:"token_endpoint"`

	// EndSessionEndpoint is the OIDC RP-initiated logout endpoint. Some providers
	// do not publish one.
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	// UserinfoEndpoint is the OIDC user info endpoint.
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`
}

// ScopeList splits a space-separated scope string.
func ScopeList(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
