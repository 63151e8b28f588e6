package oauth

import (
	"net/url"
	"strings"
)

// OnRedirect delivers a redirect URL received out of band (deep link or
// loopback callback). It returns true when the URL resolved a pending login or
// logout. Malformed, unrelated, or unmatched URLs are dropped without error and
// leave all state untouched.
func (a *Authenticator) OnRedirect(rawURL string) bool {
	kind, resp, ok := a.parseRedirect(rawURL)
	if !ok {
		a.metrics.redirectDropped()
		a.logger.Debug("Dropped redirect that matches no configured redirect URI")
		return false
	}

	var delivered bool
	switch kind {
	case RedirectLogin:
		delivered = a.correlator.ResolveLogin(resp.State, resp)
	case RedirectLogout:
		delivered = a.correlator.ResolveLogout(resp)
	}

	if !delivered {
		a.metrics.redirectDropped()
		a.logger.Debug("Dropped redirect with no pending request", "kind", kind.String())
	}
	return delivered
}

// parseRedirect classifies rawURL by the configured redirect URIs and extracts
// the OAuth response parameters.
func (a *Authenticator) parseRedirect(rawURL string) (RedirectKind, RedirectResponse, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return RedirectLogin, RedirectResponse{}, false
	}

	query := u.Query()
	resp := RedirectResponse{
		URL:              rawURL,
		State:            query.Get("state"),
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	switch {
	case sameEndpoint(u, a.redirectURI):
		if resp.State == "" {
			return RedirectLogin, RedirectResponse{}, false
		}
		return RedirectLogin, resp, true
	case a.postLogoutRedirectURI != "" && sameEndpoint(u, a.postLogoutRedirectURI):
		return RedirectLogout, resp, true
	default:
		return RedirectLogin, RedirectResponse{}, false
	}
}

// sameEndpoint compares scheme, host and path, ignoring query and fragment.
// Scheme and host are case-insensitive.
func sameEndpoint(u *url.URL, configured string) bool {
	c, err := url.Parse(configured)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.Scheme) &&
		strings.EqualFold(u.Host, c.Host) &&
		normalizePath(u) == normalizePath(c)
}

func normalizePath(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return strings.TrimSuffix(p, "/")
}
