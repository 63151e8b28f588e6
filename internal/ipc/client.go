package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/giantswarm/deskauth/internal/oauth"
	"github.com/giantswarm/deskauth/internal/resource"
)

// Client calls a Server on behalf of the CLI or UI.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a client for the server listening on address (host:port
// or a full base URL).
func NewClient(address, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// Login waits for the user, so there is no overall timeout; callers
		// bound requests through their context.
		httpClient = &http.Client{}
	}
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		secret:     secret,
		httpClient: httpClient,
	}
}

func (c *Client) Login(ctx context.Context) error   { return c.do(ctx, http.MethodPost, "/v1/login", nil, nil) }
func (c *Client) Logout(ctx context.Context) error  { return c.do(ctx, http.MethodPost, "/v1/logout", nil, nil) }
func (c *Client) Refresh(ctx context.Context) error { return c.do(ctx, http.MethodPost, "/v1/refresh", nil, nil) }
func (c *Client) Clear(ctx context.Context) error   { return c.do(ctx, http.MethodPost, "/v1/clear", nil, nil) }

func (c *Client) ExpireAccessToken(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/expire/access", nil, nil)
}

func (c *Client) ExpireRefreshToken(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/expire/refresh", nil, nil)
}

// AccessToken returns the held access token, or a LoginRequired error.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodGet, "/v1/token", nil, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

func (c *Client) Status(ctx context.Context) (oauth.Status, error) {
	var status oauth.Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &status)
	return status, err
}

func (c *Client) UserInfo(ctx context.Context) (*resource.UserInfo, error) {
	var info resource.UserInfo
	if err := c.do(ctx, http.MethodGet, "/v1/userinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Redirect forwards a deep-link URL and reports whether it matched a pending
// request.
func (c *Client) Redirect(ctx context.Context, rawURL string) (bool, error) {
	var resp RedirectResponse
	if err := c.do(ctx, http.MethodPost, "/v1/redirect", RedirectRequest{URL: rawURL}, &resp); err != nil {
		return false, err
	}
	return resp.Delivered, nil
}

// do sends a request and decodes a JSON response into out. Error responses
// are decoded back into *oauth.AuthError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return oauth.NewGeneralError(oauth.AreaIPC, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return oauth.NewGeneralError(oauth.AreaIPC, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return oauth.NewGeneralError(oauth.AreaIPC, fmt.Errorf("failed to reach deskauth server at %s: %w", c.baseURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oauth.NewGeneralError(oauth.AreaIPC, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var ed oauth.ErrorData
	if err := json.Unmarshal(data, &ed); err != nil || ed.Code == "" {
		aerr := oauth.NewGeneralError(oauth.AreaIPC,
			fmt.Errorf("unexpected response %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		aerr.StatusCode = resp.StatusCode
		return aerr
	}
	return oauth.FromData(ed)
}
