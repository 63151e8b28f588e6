package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// Logout URL styles accepted in configuration.
const (
	LogoutStyleStandard = "standard"
	LogoutStyleCognito  = "cognito"
)

// LogoutURLBuilder builds the browser URL that ends the upstream session.
type LogoutURLBuilder interface {
	BuildLogoutURL(md *pkgoauth.Metadata, idToken string) (string, error)
}

// StandardLogout follows OpenID Connect RP-Initiated Logout: the end_session_endpoint
// receives id_token_hint and post_logout_redirect_uri.
type StandardLogout struct {
	ClientID              string
	PostLogoutRedirectURI string

	// Endpoint overrides the discovered end_session_endpoint.
	Endpoint string
}

// BuildLogoutURL implements LogoutURLBuilder.
func (b StandardLogout) BuildLogoutURL(md *pkgoauth.Metadata, idToken string) (string, error) {
	endpoint := b.Endpoint
	if endpoint == "" && md != nil {
		endpoint = md.EndSessionEndpoint
	}
	if endpoint == "" {
		return "", errors.New("the authorization server does not publish an end_session_endpoint")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid end session endpoint: %w", err)
	}

	query := u.Query()
	query.Set("id_token_hint", idToken)
	if b.PostLogoutRedirectURI != "" {
		query.Set("post_logout_redirect_uri", b.PostLogoutRedirectURI)
	}
	if b.ClientID != "" {
		query.Set("client_id", b.ClientID)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// CognitoLogout uses AWS Cognito's vendor logout endpoint, which takes client_id
// and logout_uri instead of the OIDC parameters.
type CognitoLogout struct {
	ClientID  string
	LogoutURI string

	// Endpoint is the hosted UI logout URL, e.g. https://<domain>/logout.
	// When empty it is derived from the authorization endpoint's host.
	Endpoint string
}

// BuildLogoutURL implements LogoutURLBuilder.
func (b CognitoLogout) BuildLogoutURL(md *pkgoauth.Metadata, _ string) (string, error) {
	endpoint := b.Endpoint
	if endpoint == "" {
		if md == nil || md.AuthorizationEndpoint == "" {
			return "", errors.New("no logout endpoint is configured")
		}
		authURL, err := url.Parse(md.AuthorizationEndpoint)
		if err != nil {
			return "", fmt.Errorf("invalid authorization endpoint: %w", err)
		}
		endpoint = authURL.Scheme + "://" + authURL.Host + "/logout"
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid logout endpoint: %w", err)
	}

	query := u.Query()
	query.Set("client_id", b.ClientID)
	query.Set("logout_uri", b.LogoutURI)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// NewLogoutURLBuilder selects a builder by configured style.
func NewLogoutURLBuilder(style, clientID, postLogoutRedirectURI, endpoint string) (LogoutURLBuilder, error) {
	switch strings.ToLower(style) {
	case "", LogoutStyleStandard:
		return StandardLogout{ClientID: clientID, PostLogoutRedirectURI: postLogoutRedirectURI, Endpoint: endpoint}, nil
	case LogoutStyleCognito:
		return CognitoLogout{ClientID: clientID, LogoutURI: postLogoutRedirectURI, Endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("unknown logout style %q", style)
	}
}
