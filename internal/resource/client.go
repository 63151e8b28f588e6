package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/giantswarm/deskauth/internal/oauth"
	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// maxResponseBytes bounds how much of an API response is read.
const maxResponseBytes = 1 << 20

// TokenSource is the part of the authenticator the client depends on.
type TokenSource interface {
	GetAccessToken() (string, error)
	TokenRefresh(ctx context.Context) error
}

// Client sends authenticated requests and applies the single retry policy.
type Client struct {
	tokens     TokenSource
	metadata   oauth.MetadataSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client. Its Transport is wrapped to attach
// the bearer token.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client that authenticates with tokens and discovers the
// user info endpoint through metadata.
func NewClient(tokens TokenSource, metadata oauth.MetadataSource, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		metadata:   metadata,
		httpClient: &http.Client{Timeout: pkgoauth.DefaultHTTPTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do sends the request built by newRequest with the current access token.
// On 401 it refreshes once and retries once. The caller closes the body of a
// returned response.
func (c *Client) Do(ctx context.Context, newRequest RequestFunc) (*http.Response, error) {
	resp, err := c.send(ctx, newRequest)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	challenge := pkgoauth.ParseWWWAuthenticateFromResponse(resp)
	drain(resp)
	if challenge != nil {
		c.logger.Debug("Resource server rejected the access token",
			"error", challenge.Error,
			"error_description", challenge.ErrorDescription)
	}

	if err := c.tokens.TokenRefresh(ctx); err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, newRequest)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Info("Access token rejected after refresh, login required")
		return nil, oauth.NewLoginRequiredError()
	}
	return resp, nil
}

// send performs one attempt with the access token currently held. A missing
// token is reported as LoginRequired without any network call.
func (c *Client) send(ctx context.Context, newRequest RequestFunc) (*http.Response, error) {
	accessToken, err := c.tokens.GetAccessToken()
	if err != nil {
		return nil, err
	}

	req, err := newRequest(ctx)
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.authorizedClient(accessToken).Do(req)
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("request to %s failed: %w", req.URL.Redacted(), err))
	}
	return resp, nil
}

// authorizedClient returns a copy of the base client whose transport attaches
// accessToken as a bearer token.
func (c *Client) authorizedClient(accessToken string) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c.httpClient
	clone.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		Base:   base,
	}
	return &clone
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}

// UserInfo is the OIDC user info response.
type UserInfo struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`

	// Claims holds every member of the response, including the ones above.
	Claims map[string]interface{} `json:"-"`
}

// UserInfo fetches the signed-in user's claims from the discovered user info endpoint.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	md, err := c.metadata.Get(ctx)
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, err)
	}
	if md.UserinfoEndpoint == "" {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, errors.New("the authorization server does not publish a userinfo_endpoint"))
	}

	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.UserinfoEndpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("failed to read user info response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		aerr := oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("user info request failed with status %d", resp.StatusCode))
		aerr.StatusCode = resp.StatusCode
		aerr.URL = md.UserinfoEndpoint
		return nil, aerr
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("failed to decode user info response: %w", err))
	}
	if err := json.Unmarshal(body, &info.Claims); err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, fmt.Errorf("failed to decode user info claims: %w", err))
	}
	return &info, nil
}
