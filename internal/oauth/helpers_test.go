package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const (
	testClientID              = "desktop-client"
	testRedirectURI           = "com.example.desktop:/callback"
	testPostLogoutRedirectURI = "com.example.desktop:/logoutcallback"
)

// fakeAuthServer is a minimal OIDC provider: discovery, token endpoint with
// authorization_code (PKCE) and refresh_token grants, and an end-session endpoint.
type fakeAuthServer struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	codes         map[string]string // code -> code_challenge
	refreshTokens map[string]bool
	issued        int

	// omitRotation makes refresh responses carry only an access token.
	omitRotation bool

	// refreshDelay holds refresh responses back so callers can pile up.
	refreshDelay time.Duration

	// refreshError, when set, fails every refresh with this error code and a 503.
	refreshError string

	discoveryCalls atomic.Int32
	tokenCalls     atomic.Int32
	refreshCalls   atomic.Int32
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	f := &fakeAuthServer{
		t:             t,
		codes:         make(map[string]string),
		refreshTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.handleDiscovery)
	mux.HandleFunc("/token", f.handleToken)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAuthServer) issuer() string {
	return f.server.URL
}

func (f *fakeAuthServer) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	f.discoveryCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"issuer":                 f.server.URL,
		"authorization_endpoint": f.server.URL + "/authorize",
		"token_endpoint":         f.server.URL + "/token",
		"end_session_endpoint":   f.server.URL + "/logout",
		"userinfo_endpoint":      f.server.URL + "/userinfo",
		"jwks_uri":               f.server.URL + "/jwks",
	})
}

func (f *fakeAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		challenge, ok := f.codes[r.PostForm.Get("code")]
		delete(f.codes, r.PostForm.Get("code"))
		f.mu.Unlock()

		if !ok || pkceChallenge(r.PostForm.Get("code_verifier")) != challenge {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code or verifier rejected")
			return
		}
		f.writeTokens(w, true)

	case "refresh_token":
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}

		if f.refreshError != "" {
			writeOAuthError(w, http.StatusServiceUnavailable, f.refreshError, "try again later")
			return
		}

		f.mu.Lock()
		valid := f.refreshTokens[r.PostForm.Get("refresh_token")]
		if valid && !f.omitRotation {
			delete(f.refreshTokens, r.PostForm.Get("refresh_token"))
		}
		f.mu.Unlock()

		if !valid {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid")
			return
		}
		f.writeTokens(w, !f.omitRotation)

	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (f *fakeAuthServer) writeTokens(w http.ResponseWriter, full bool) {
	f.mu.Lock()
	f.issued++
	n := f.issued
	resp := map[string]interface{}{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if full {
		refresh := fmt.Sprintf("refresh-%d", n)
		f.refreshTokens[refresh] = true
		resp["refresh_token"] = refresh
		resp["id_token"] = f.idToken(n)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeAuthServer) idToken(n int) string {
	claims := jwt.MapClaims{
		"iss":   f.server.URL,
		"sub":   "user-123",
		"aud":   testClientID,
		"email": "user@example.com",
		"name":  fmt.Sprintf("Test User %d", n),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	return signed
}

// authorize plays the user signing in: it records the challenge and returns
// the redirect the browser would be sent to.
func (f *fakeAuthServer) authorize(authURL string) string {
	u, err := url.Parse(authURL)
	require.NoError(f.t, err)
	q := u.Query()

	code := fmt.Sprintf("code-%d", time.Now().UnixNano())
	f.mu.Lock()
	f.codes[code] = q.Get("code_challenge")
	f.mu.Unlock()

	redirect := url.Values{}
	redirect.Set("code", code)
	redirect.Set("state", q.Get("state"))
	return q.Get("redirect_uri") + "?" + redirect.Encode()
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newTestStore returns a TokenStore in a temp dir, sealed with a key held in
// the in-memory mock keyring.
func newTestStore(t *testing.T) *TokenStore {
	t.Helper()
	keyring.MockInit()

	protector, err := NewKeyringProtector("deskauth-test")
	require.NoError(t, err)

	store, err := NewTokenStore(TokenStoreConfig{
		Path:      filepath.Join(t.TempDir(), "tokens.bin"),
		Protector: protector,
	})
	require.NoError(t, err)
	return store
}

// recordingBrowser records every URL it is asked to open and optionally acts on it.
type recordingBrowser struct {
	mu     sync.Mutex
	opened []string
	onOpen func(url string) error
}

func (b *recordingBrowser) OpenURL(u string) error {
	b.mu.Lock()
	b.opened = append(b.opened, u)
	onOpen := b.onOpen
	b.mu.Unlock()

	if onOpen != nil {
		return onOpen(u)
	}
	return nil
}

func (b *recordingBrowser) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

type testAuthenticator struct {
	*Authenticator
	server   *fakeAuthServer
	store    *TokenStore
	browser  *recordingBrowser
	registry *prometheus.Registry
}

// newTestAuthenticator wires an Authenticator to a fake server. Unless the test
// replaces browser.onOpen, opening the authorization URL completes the login and
// opening the logout URL acknowledges the logout.
func newTestAuthenticator(t *testing.T) *testAuthenticator {
	t.Helper()

	server := newFakeAuthServer(t)
	store := newTestStore(t)
	browser := &recordingBrowser{}
	registry := prometheus.NewRegistry()

	auth, err := NewAuthenticator(AuthenticatorConfig{
		ClientID:              testClientID,
		RedirectURI:           testRedirectURI,
		PostLogoutRedirectURI: testPostLogoutRedirectURI,
		Metadata:              NewMetadataCache(server.issuer(), nil, nil),
		Store:                 store,
		Browser:               browser,
		Metrics:               NewMetrics(registry),
	})
	require.NoError(t, err)

	ta := &testAuthenticator{
		Authenticator: auth,
		server:        server,
		store:         store,
		browser:       browser,
		registry:      registry,
	}

	browser.onOpen = func(u string) error {
		switch {
		case strings.HasPrefix(u, server.issuer()+"/authorize"):
			go auth.OnRedirect(server.authorize(u))
		case strings.HasPrefix(u, server.issuer()+"/logout"):
			go auth.OnRedirect(testPostLogoutRedirectURI)
		}
		return nil
	}
	return ta
}
