package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/sync/singleflight"

	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// MetadataSource provides the authorization server endpoints.
type MetadataSource interface {
	Get(ctx context.Context) (*pkgoauth.Metadata, error)
}

// MetadataError is a discovery failure tagged with the discovery document URL.
type MetadataError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to download metadata from %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetadataError) Unwrap() error {
	return e.Err
}

// MetadataCache fetches the OIDC discovery document once and keeps it for the
// lifetime of the process. Concurrent first calls share one fetch. Failures are
// not cached.
type MetadataCache struct {
	issuer     string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	metadata *pkgoauth.Metadata

	group singleflight.Group
}

// NewMetadataCache creates a cache for the given issuer.
func NewMetadataCache(issuer string, httpClient *http.Client, logger *slog.Logger) *MetadataCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: pkgoauth.DefaultHTTPTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataCache{
		issuer:     issuer,
		httpClient: httpClient,
		logger:     logger,
	}
}

// DiscoveryURL returns the location of the discovery document.
func (c *MetadataCache) DiscoveryURL() string {
	return strings.TrimSuffix(c.issuer, "/") + "/.well-known/openid-configuration"
}

// Get returns the cached metadata, fetching it on first use.
func (c *MetadataCache) Get(ctx context.Context) (*pkgoauth.Metadata, error) {
	c.mu.RLock()
	if c.metadata != nil {
		md := c.metadata
		c.mu.RUnlock()
		return md, nil
	}
	c.mu.RUnlock()

	ch := c.group.DoChan(c.issuer, func() (interface{}, error) {
		// Double-check cache after acquiring singleflight lock
		c.mu.RLock()
		if c.metadata != nil {
			md := c.metadata
			c.mu.RUnlock()
			return md, nil
		}
		c.mu.RUnlock()

		// The fetch is shared, so one caller's cancellation must not fail the others.
		return c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*pkgoauth.Metadata), nil
	case <-ctx.Done():
		return nil, &MetadataError{URL: c.DiscoveryURL(), Err: ctx.Err()}
	}
}

// fetch downloads and validates the discovery document.
func (c *MetadataCache) fetch(ctx context.Context) (*pkgoauth.Metadata, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.issuer)
	if err != nil {
		c.logger.Warn("OIDC discovery failed", "url", c.DiscoveryURL(), "error", err.Error())
		return nil, &MetadataError{URL: c.DiscoveryURL(), Err: err}
	}

	var extra struct {
		Issuer             string `json:"issuer"`
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, &MetadataError{URL: c.DiscoveryURL(), Err: err}
	}

	endpoint := provider.Endpoint()
	md := &pkgoauth.Metadata{
		Issuer:                extra.Issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		EndSessionEndpoint:    extra.EndSessionEndpoint,
		UserinfoEndpoint:      provider.UserInfoEndpoint(),
	}

	c.mu.Lock()
	c.metadata = md
	c.mu.Unlock()

	c.logger.Debug("Cached OAuth metadata",
		"issuer", md.Issuer,
		"authorization_endpoint", md.AuthorizationEndpoint,
		"token_endpoint", md.TokenEndpoint,
		"end_session_endpoint", md.EndSessionEndpoint)

	return md, nil
}
