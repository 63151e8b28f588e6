package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/deskauth/internal/oauth"
	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// fakeTokens holds a single access token; refresh replaces it with next.
type fakeTokens struct {
	mu         sync.Mutex
	token      string
	next       string
	refreshErr error
	refreshes  int
}

func (f *fakeTokens) GetAccessToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		return "", oauth.NewLoginRequiredError()
	}
	return f.token, nil
}

func (f *fakeTokens) TokenRefresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.token = f.next
	return nil
}

type staticMetadata struct {
	md *pkgoauth.Metadata
}

func (s staticMetadata) Get(context.Context) (*pkgoauth.Metadata, error) {
	return s.md, nil
}

// newUserInfoServer accepts only "good-token" and counts requests.
func newUserInfoServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="The access token expired"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "user-123",
			"name":           "Test User",
			"email":          "user@example.com",
			"email_verified": true,
			"groups":         []string{"admins"},
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(tokens TokenSource, server *httptest.Server) *Client {
	return NewClient(tokens, staticMetadata{md: &pkgoauth.Metadata{UserinfoEndpoint: server.URL + "/userinfo"}})
}

func TestUserInfo(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	tokens := &fakeTokens{token: "good-token"}

	info, err := newTestClient(tokens, server).UserInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user-123", info.Subject)
	assert.Equal(t, "Test User", info.Name)
	assert.Equal(t, "user@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Contains(t, info.Claims, "groups")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, tokens.refreshes)
}

func TestUserInfo_RefreshesOnceAndRetries(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	tokens := &fakeTokens{token: "expired-token", next: "good-token"}

	info, err := newTestClient(tokens, server).UserInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user-123", info.Subject)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUserInfo_SecondUnauthorizedIsNotRetried(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	tokens := &fakeTokens{token: "expired-token", next: "still-bad-token"}

	_, err := newTestClient(tokens, server).UserInfo(context.Background())
	require.Error(t, err)

	assert.True(t, oauth.IsLoginRequired(err))
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUserInfo_NoAccessToken(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	tokens := &fakeTokens{}

	_, err := newTestClient(tokens, server).UserInfo(context.Background())

	assert.True(t, oauth.IsLoginRequired(err))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, tokens.refreshes)
}

func TestUserInfo_RefreshClearedState(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	// Refresh succeeded by clearing the login state (invalid_grant policy).
	tokens := &fakeTokens{token: "expired-token", next: ""}

	_, err := newTestClient(tokens, server).UserInfo(context.Background())

	assert.True(t, oauth.IsLoginRequired(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserInfo_RefreshFailure(t *testing.T) {
	server, calls := newUserInfoServer(t, http.StatusOK)
	tokens := &fakeTokens{
		token:      "expired-token",
		refreshErr: oauth.NewTokenRenewalError(errors.New("token endpoint unavailable")),
	}

	_, err := newTestClient(tokens, server).UserInfo(context.Background())

	assert.Equal(t, oauth.CodeTokenRenewalError, oauth.CodeOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserInfo_ServerError(t *testing.T) {
	server, _ := newUserInfoServer(t, http.StatusInternalServerError)
	tokens := &fakeTokens{token: "good-token"}

	_, err := newTestClient(tokens, server).UserInfo(context.Background())
	require.Error(t, err)

	aerr := oauth.AsAuthError(err)
	assert.Equal(t, oauth.CodeGeneralError, aerr.Code)
	assert.Equal(t, http.StatusInternalServerError, aerr.StatusCode)
	assert.Equal(t, server.URL+"/userinfo", aerr.URL)
	assert.Equal(t, 0, tokens.refreshes)
}

func TestUserInfo_NoEndpoint(t *testing.T) {
	client := NewClient(&fakeTokens{token: "good-token"}, staticMetadata{md: &pkgoauth.Metadata{}})

	_, err := client.UserInfo(context.Background())
	assert.Equal(t, oauth.CodeGeneralError, oauth.CodeOf(err))
}
