package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// maxTokenResponseBytes bounds how much of a token endpoint response is read.
const maxTokenResponseBytes = 1 << 20

// ErrorInvalidGrant is the RFC 6749 error code for a rejected grant,
// e.g. a revoked or corrupted refresh token.
const ErrorInvalidGrant = "invalid_grant"

// ProtocolError is an RFC 6749 section 5.2 error response from a token endpoint.
type ProtocolError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the "error" member, e.g. "invalid_grant".
	Code string

	// Description is the optional "error_description" member.
	Description string

	// URI is the optional "error_uri" member.
	URI string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	code := e.Code
	if code == "" {
		code = "unknown_error"
	}
	if e.Description != "" {
		return fmt.Sprintf("token endpoint returned %s (status %d): %s", code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("token endpoint returned %s (status %d)", code, e.StatusCode)
}

// IsInvalidGrant reports whether err is a token endpoint invalid_grant response.
func IsInvalidGrant(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr) && perr.Code == ErrorInvalidGrant
}

// Client handles token endpoint requests.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CodeExchange carries the parameters of an authorization_code grant.
type CodeExchange struct {
	TokenEndpoint string
	Code          string
	RedirectURI   string
	ClientID      string
	CodeVerifier  string
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, req CodeExchange) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {req.Code},
		"redirect_uri":  {req.RedirectURI},
		"client_id":     {req.ClientID},
		"code_verifier": {req.CodeVerifier},
	}

	return c.doTokenRequest(ctx, req.TokenEndpoint, data)
}

// RefreshRequest carries the parameters of a refresh_token grant.
type RefreshRequest struct {
	TokenEndpoint string
	RefreshToken  string
	ClientID      string
	Scope         string
}

// RefreshToken obtains a new access token using a refresh token.
func (c *Client) RefreshToken(ctx context.Context, req RefreshRequest) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {req.RefreshToken},
		"client_id":     {req.ClientID},
	}
	if req.Scope != "" {
		data.Set("scope", req.Scope)
	}

	return c.doTokenRequest(ctx, req.TokenEndpoint, data)
}

// doTokenRequest performs a token endpoint request. Non-200 responses are
// returned as *ProtocolError.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := parseProtocolError(resp.StatusCode, body)
		c.logger.Debug("Token request failed",
			"grant_type", data.Get("grant_type"),
			"status", resp.StatusCode,
			"error", perr.Code)
		return nil, perr
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response did not contain an access token")
	}

	return &token, nil
}

// parseProtocolError extracts the RFC 6749 error members from a response body.
// Bodies that are not JSON still produce an error carrying the status code.
func parseProtocolError(status int, body []byte) *ProtocolError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	_ = json.Unmarshal(body, &payload)

	return &ProtocolError{
		StatusCode:  status,
		Code:        payload.Error,
		Description: payload.ErrorDescription,
		URI:         payload.ErrorURI,
	}
}
