package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataCache_FetchesOnce(t *testing.T) {
	server := newFakeAuthServer(t)
	cache := NewMetadataCache(server.issuer(), nil, nil)

	md, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, server.issuer(), md.Issuer)
	assert.Equal(t, server.issuer()+"/authorize", md.AuthorizationEndpoint)
	assert.Equal(t, server.issuer()+"/token", md.TokenEndpoint)
	assert.Equal(t, server.issuer()+"/logout", md.EndSessionEndpoint)
	assert.Equal(t, server.issuer()+"/userinfo", md.UserinfoEndpoint)

	again, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, md, again)
	assert.Equal(t, int32(1), server.discoveryCalls.Load())
}

func TestMetadataCache_ConcurrentFirstCallsShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
			"jwks_uri":               server.URL + "/jwks",
		})
	}))
	defer server.Close()

	cache := NewMetadataCache(server.URL, nil, nil)

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background())
			assert.NoError(t, err)
		}()
	}

	// Give the callers time to pile up on the in-flight fetch.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestMetadataCache_FailureIsTagged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cache := NewMetadataCache(server.URL+"/", nil, nil)
	assert.Equal(t, server.URL+"/.well-known/openid-configuration", cache.DiscoveryURL())

	_, err := cache.Get(context.Background())
	require.Error(t, err)

	var merr *MetadataError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, server.URL+"/.well-known/openid-configuration", merr.URL)
}

func TestMetadataCache_RetriesAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
			"jwks_uri":               server.URL + "/jwks",
		})
	}))
	defer server.Close()

	cache := NewMetadataCache(server.URL, nil, nil)

	_, err := cache.Get(context.Background())
	require.Error(t, err)

	fail.Store(false)
	md, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/token", md.TokenEndpoint)
}

func TestMetadataCache_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		http.Error(w, "late", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	defer close(release)

	cache := NewMetadataCache(server.URL, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var merr *MetadataError
	assert.True(t, errors.As(err, &merr))
}
