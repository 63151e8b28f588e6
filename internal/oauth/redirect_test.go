package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedirectTestAuthenticator(t *testing.T, redirectURI, postLogoutURI string) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(AuthenticatorConfig{
		ClientID:              testClientID,
		RedirectURI:           redirectURI,
		PostLogoutRedirectURI: postLogoutURI,
		Metadata:              NewMetadataCache("https://issuer.example.com", nil, nil),
		Store:                 newTestStore(t),
		Browser:               BrowserFunc(func(string) error { return nil }),
	})
	require.NoError(t, err)
	return auth
}

func TestParseRedirect(t *testing.T) {
	auth := newRedirectTestAuthenticator(t, "http://127.0.0.1:8731/callback", "http://127.0.0.1:8731/logout-callback")

	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantKind RedirectKind
		want     RedirectResponse
	}{
		{
			name:     "login success",
			raw:      "http://127.0.0.1:8731/callback?code=abc&state=xyz",
			wantOK:   true,
			wantKind: RedirectLogin,
			want:     RedirectResponse{State: "xyz", Code: "abc"},
		},
		{
			name:     "login error",
			raw:      "http://127.0.0.1:8731/callback?error=access_denied&error_description=nope&state=xyz",
			wantOK:   true,
			wantKind: RedirectLogin,
			want:     RedirectResponse{State: "xyz", Error: "access_denied", ErrorDescription: "nope"},
		},
		{
			name:     "case-insensitive host and trailing slash",
			raw:      "HTTP://127.0.0.1:8731/callback/?code=abc&state=xyz",
			wantOK:   true,
			wantKind: RedirectLogin,
			want:     RedirectResponse{State: "xyz", Code: "abc"},
		},
		{
			name:     "logout",
			raw:      "http://127.0.0.1:8731/logout-callback",
			wantOK:   true,
			wantKind: RedirectLogout,
		},
		{name: "login without state", raw: "http://127.0.0.1:8731/callback?code=abc"},
		{name: "other path", raw: "http://127.0.0.1:8731/other?code=abc&state=xyz"},
		{name: "other port", raw: "http://127.0.0.1:9999/callback?code=abc&state=xyz"},
		{name: "unrelated deep link", raw: "myapp://settings/open"},
		{name: "malformed", raw: "http://[::1%zz/callback"},
		{name: "not a URL", raw: "%%%"},
		{name: "empty", raw: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, resp, ok := auth.parseRedirect(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			assert.Equal(t, tc.wantKind, kind)
			assert.Equal(t, tc.want.State, resp.State)
			assert.Equal(t, tc.want.Code, resp.Code)
			assert.Equal(t, tc.want.Error, resp.Error)
			assert.Equal(t, tc.want.ErrorDescription, resp.ErrorDescription)
			assert.Equal(t, tc.raw, resp.URL)
		})
	}
}

func TestParseRedirect_CustomScheme(t *testing.T) {
	auth := newRedirectTestAuthenticator(t, testRedirectURI, testPostLogoutRedirectURI)

	kind, resp, ok := auth.parseRedirect("com.example.desktop:/callback?code=abc&state=xyz")
	require.True(t, ok)
	assert.Equal(t, RedirectLogin, kind)
	assert.Equal(t, "xyz", resp.State)

	kind, _, ok = auth.parseRedirect("com.example.desktop:/logoutcallback")
	require.True(t, ok)
	assert.Equal(t, RedirectLogout, kind)

	_, _, ok = auth.parseRedirect("com.other.app:/callback?code=abc&state=xyz")
	assert.False(t, ok)
}

func TestOnRedirect_DeliversToPendingLogin(t *testing.T) {
	auth := newRedirectTestAuthenticator(t, testRedirectURI, testPostLogoutRedirectURI)

	var got RedirectResponse
	auth.correlator.BeginLogin("xyz", func(r RedirectResponse) { got = r })

	assert.False(t, auth.OnRedirect("com.example.desktop:/callback?code=abc&state=other"))
	assert.Empty(t, got.Code)

	assert.True(t, auth.OnRedirect("com.example.desktop:/callback?code=abc&state=xyz"))
	assert.Equal(t, "abc", got.Code)
	assert.Equal(t, 0, auth.correlator.PendingLogins())
}
