package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// AuthenticatorConfig holds the collaborators and settings of an Authenticator.
type AuthenticatorConfig struct {
	// ClientID is the public client identifier registered with the authorization server.
	ClientID string

	// RedirectURI receives the login response.
	RedirectURI string

	// PostLogoutRedirectURI receives the logout acknowledgement.
	PostLogoutRedirectURI string

	// Scope is the space-separated scope requested at login and refresh.
	// Defaults to pkgoauth.DefaultScope.
	Scope string

	Metadata MetadataSource
	Store    TokenPersister

	// Browser defaults to SystemBrowser.
	Browser Browser

	// LogoutURLs defaults to StandardLogout.
	LogoutURLs LogoutURLBuilder

	// Client performs token endpoint calls. Defaults to a client using Logger.
	Client *pkgoauth.Client

	Metrics          *Metrics
	Logger           *slog.Logger
	MaxPendingLogins int
}

// Authenticator signs the user in and out through the system browser and owns
// the token set for the lifetime of the process.
//
// The in-memory token set is a cache of the persisted record. Every mutation
// goes through setTokensLocked, which bumps generation so that a refresh that
// started before the mutation does not overwrite it.
type Authenticator struct {
	clientID              string
	redirectURI           string
	postLogoutRedirectURI string
	scope                 string

	metadata   MetadataSource
	store      TokenPersister
	browser    Browser
	logoutURLs LogoutURLBuilder
	client     *pkgoauth.Client
	metrics    *Metrics
	logger     *slog.Logger

	correlator *RedirectCorrelator
	refresher  *RefreshSerializer

	mu         sync.Mutex
	tokens     pkgoauth.TokenSet
	loaded     bool
	generation uint64
}

// NewAuthenticator creates an Authenticator. Tokens are loaded from the store
// lazily on first use.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}
	if cfg.Metadata == nil {
		return nil, errors.New("metadata source is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("token store is required")
	}
	if cfg.PostLogoutRedirectURI != "" {
		if u, err := url.Parse(cfg.PostLogoutRedirectURI); err == nil && sameEndpoint(u, cfg.RedirectURI) {
			return nil, errors.New("post-logout redirect URI must differ from the redirect URI")
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scope := cfg.Scope
	if scope == "" {
		scope = pkgoauth.DefaultScope
	}
	browser := cfg.Browser
	if browser == nil {
		browser = SystemBrowser{}
	}
	logoutURLs := cfg.LogoutURLs
	if logoutURLs == nil {
		logoutURLs = StandardLogout{ClientID: cfg.ClientID, PostLogoutRedirectURI: cfg.PostLogoutRedirectURI}
	}
	client := cfg.Client
	if client == nil {
		client = pkgoauth.NewClient(pkgoauth.WithLogger(logger))
	}

	return &Authenticator{
		clientID:              cfg.ClientID,
		redirectURI:           cfg.RedirectURI,
		postLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		scope:                 scope,
		metadata:              cfg.Metadata,
		store:                 cfg.Store,
		browser:               browser,
		logoutURLs:            logoutURLs,
		client:                client,
		metrics:               cfg.Metrics,
		logger:                logger,
		correlator:            NewRedirectCorrelator(cfg.MaxPendingLogins),
		refresher:             NewRefreshSerializer(cfg.Metrics),
	}, nil
}

// currentLocked returns the token set, loading it from the store on first use.
// REQUIRES: a.mu held.
func (a *Authenticator) currentLocked() pkgoauth.TokenSet {
	if !a.loaded {
		if loaded := a.store.Load(); loaded != nil {
			a.tokens = *loaded
		} else {
			a.tokens = pkgoauth.TokenSet{}
		}
		a.loaded = true
	}
	return a.tokens
}

func (a *Authenticator) current() pkgoauth.TokenSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked()
}

// setTokensLocked replaces the token set and persists it before returning, so
// any later read observes the new value. The in-memory value is kept even if
// persisting fails.
// REQUIRES: a.mu held.
func (a *Authenticator) setTokensLocked(tokens pkgoauth.TokenSet) error {
	a.tokens = tokens
	a.loaded = true
	a.generation++

	if tokens.IsEmpty() {
		return a.store.Delete()
	}
	return a.store.Save(tokens)
}

// IsLoggedIn reports whether a token set is held. It never touches the network.
func (a *Authenticator) IsLoggedIn() bool {
	return !a.current().IsEmpty()
}

// GetAccessToken returns the held access token, or a LoginRequired error when
// there is none. It never refreshes.
func (a *Authenticator) GetAccessToken() (string, error) {
	tokens := a.current()
	if tokens.AccessToken == "" {
		return "", NewLoginRequiredError()
	}
	return tokens.AccessToken, nil
}

// Login runs the authorization code flow with PKCE through the system browser.
// It blocks until the matching redirect arrives or ctx is done; no timeout is
// imposed otherwise.
func (a *Authenticator) Login(ctx context.Context) error {
	err := a.login(ctx)
	if err != nil {
		a.metrics.login(string(CodeOf(err)))
		return err
	}
	a.metrics.login("success")
	return nil
}

func (a *Authenticator) login(ctx context.Context) error {
	md, err := a.metadata.Get(ctx)
	if err != nil {
		return NewLoginRequestError(err)
	}

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return NewLoginRequestError(err)
	}
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return NewLoginRequestError(err)
	}

	authURL := a.authorizationURL(md, state, pkce.CodeVerifier)

	responses := make(chan RedirectResponse, 1)
	a.correlator.BeginLogin(state, func(resp RedirectResponse) {
		responses <- resp
	})

	a.logger.Info("Opening browser for login", "authorization_endpoint", md.AuthorizationEndpoint)
	if err := a.browser.OpenURL(authURL); err != nil {
		a.correlator.CancelLogin(state)
		return NewLoginRequestError(err)
	}

	var resp RedirectResponse
	select {
	case resp = <-responses:
	case <-ctx.Done():
		a.correlator.CancelLogin(state)
		return NewLoginRequestError(ctx.Err())
	}

	if resp.Superseded {
		return NewLoginRequestError(errors.New("login attempt was superseded by a newer attempt"))
	}
	if resp.IsError() {
		a.logger.Warn("Authorization server returned an error", "error", resp.Error, "error_description", resp.ErrorDescription)
		return NewLoginResponseError(resp.Error, resp.ErrorDescription)
	}
	// The correlator is keyed by state, so this only fires if that lookup is
	// ever bypassed.
	if resp.State != state {
		a.logger.Warn("SECURITY_AUDIT: login response state mismatch", "event", "state_mismatch")
		return NewInvalidStateError()
	}
	if resp.Code == "" {
		return NewLoginResponseError("", "the login response did not contain an authorization code")
	}

	tr, err := a.client.ExchangeCode(ctx, pkgoauth.CodeExchange{
		TokenEndpoint: md.TokenEndpoint,
		Code:          resp.Code,
		RedirectURI:   a.redirectURI,
		ClientID:      a.clientID,
		CodeVerifier:  pkce.CodeVerifier,
	})
	if err != nil {
		return NewAuthorizationCodeGrantError(err)
	}

	a.mu.Lock()
	err = a.setTokensLocked(tr.TokenSet())
	a.mu.Unlock()
	if err != nil {
		return NewGeneralError(AreaLogin, fmt.Errorf("failed to persist tokens: %w", err))
	}

	a.logger.Info("Login completed", "tokens", tr.TokenSet())
	return nil
}

// authorizationURL builds the authorization request bound to state and the
// verifier's S256 challenge.
func (a *Authenticator) authorizationURL(md *pkgoauth.Metadata, state, verifier string) string {
	conf := &oauth2.Config{
		ClientID:    a.clientID,
		RedirectURL: a.redirectURI,
		Scopes:      pkgoauth.ScopeList(a.scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
	}
	return conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Logout clears local login state and ends the upstream session through the
// system browser. Without an ID token it does nothing. Browser-side problems
// are logged, not returned.
func (a *Authenticator) Logout(ctx context.Context) error {
	tokens := a.current()
	if tokens.IDToken == "" {
		a.logger.Debug("Logout skipped, no ID token held")
		return nil
	}

	md, err := a.metadata.Get(ctx)
	if err != nil {
		return NewLogoutRequestError(err)
	}
	logoutURL, err := a.logoutURLs.BuildLogoutURL(md, tokens.IDToken)
	if err != nil {
		return NewLogoutRequestError(err)
	}

	if err := a.ClearLoginState(); err != nil {
		return NewLogoutRequestError(err)
	}

	if a.postLogoutRedirectURI == "" {
		// Nothing redirects back, so there is no response to wait for.
		a.logger.Info("Opening browser for logout")
		if err := a.browser.OpenURL(logoutURL); err != nil {
			a.logger.Warn("Failed to open browser for logout", "error", err.Error())
			return nil
		}
		a.metrics.logout()
		return nil
	}

	responses := make(chan RedirectResponse, 1)
	id := a.correlator.BeginLogout(func(resp RedirectResponse) {
		responses <- resp
	})

	a.logger.Info("Opening browser for logout")
	if err := a.browser.OpenURL(logoutURL); err != nil {
		a.correlator.CancelLogout(id)
		a.logger.Warn("Failed to open browser for logout", "error", err.Error())
		return nil
	}
	a.metrics.logout()

	select {
	case resp := <-responses:
		switch {
		case resp.Superseded:
			a.logger.Debug("Logout superseded by a newer logout")
		case resp.IsError():
			a.logger.Warn("Logout response carried an error", "error", resp.Error, "error_description", resp.ErrorDescription)
		default:
			a.logger.Info("Logout completed")
		}
		return nil
	case <-ctx.Done():
		a.correlator.CancelLogout(id)
		return NewLogoutRequestError(ctx.Err())
	}
}

// TokenRefresh renews the access token with the refresh token. Concurrent
// calls share a single token endpoint request and its outcome.
//
// An invalid_grant response, or having no refresh token at all, clears the
// login state and returns nil; the next GetAccessToken reports LoginRequired.
func (a *Authenticator) TokenRefresh(ctx context.Context) error {
	return a.refresher.Do(ctx, a.refresh)
}

func (a *Authenticator) refresh(ctx context.Context) error {
	a.mu.Lock()
	tokens := a.currentLocked()
	generation := a.generation
	a.mu.Unlock()

	if tokens.RefreshToken == "" {
		a.logger.Info("No refresh token held, clearing login state")
		return a.clearIfUnchanged(generation)
	}

	md, err := a.metadata.Get(ctx)
	if err != nil {
		return NewTokenRenewalError(err)
	}

	tr, err := a.client.RefreshToken(ctx, pkgoauth.RefreshRequest{
		TokenEndpoint: md.TokenEndpoint,
		RefreshToken:  tokens.RefreshToken,
		ClientID:      a.clientID,
		Scope:         a.scope,
	})
	if err != nil {
		if pkgoauth.IsInvalidGrant(err) {
			a.metrics.refreshRequest(pkgoauth.ErrorInvalidGrant)
			a.logger.Info("SECURITY_AUDIT: refresh token rejected, clearing login state", "event", "invalid_grant")
			return a.clearIfUnchanged(generation)
		}
		a.metrics.refreshRequest("error")
		return NewTokenRenewalError(err)
	}
	a.metrics.refreshRequest("success")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation {
		a.logger.Debug("Token set changed during refresh, discarding refresh result")
		return nil
	}
	if err := a.setTokensLocked(tokens.Rotate(tr)); err != nil {
		return NewGeneralError(AreaTokenRenewal, fmt.Errorf("failed to persist tokens: %w", err))
	}
	a.logger.Debug("Access token renewed",
		"refresh_token_rotated", tr.RefreshToken != "",
		"id_token_rotated", tr.IDToken != "")
	return nil
}

// clearIfUnchanged drops the token set unless it was replaced after generation
// was observed.
func (a *Authenticator) clearIfUnchanged(generation uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation {
		return nil
	}
	if err := a.setTokensLocked(pkgoauth.TokenSet{}); err != nil {
		return NewGeneralError(AreaTokenRenewal, fmt.Errorf("failed to delete tokens: %w", err))
	}
	return nil
}

// ClearLoginState drops the in-memory and persisted tokens.
func (a *Authenticator) ClearLoginState() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.setTokensLocked(pkgoauth.TokenSet{}); err != nil {
		return NewGeneralError(AreaDesktopApp, fmt.Errorf("failed to delete tokens: %w", err))
	}
	a.logger.Info("SECURITY_AUDIT: login state cleared", "event", "tokens_cleared")
	return nil
}

// ExpireAccessToken corrupts the held access token so the next API call is
// rejected. For testing recovery paths only.
func (a *Authenticator) ExpireAccessToken() error {
	return a.corrupt(func(t *pkgoauth.TokenSet) {
		t.AccessToken = corruptToken(t.AccessToken)
	})
}

// ExpireRefreshToken corrupts the held refresh token, and the access token with
// it, so the next API call fails and the following refresh gets invalid_grant.
// For testing recovery paths only.
func (a *Authenticator) ExpireRefreshToken() error {
	return a.corrupt(func(t *pkgoauth.TokenSet) {
		t.RefreshToken = corruptToken(t.RefreshToken)
		t.AccessToken = corruptToken(t.AccessToken)
	})
}

func (a *Authenticator) corrupt(mutate func(*pkgoauth.TokenSet)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tokens := a.currentLocked()
	if tokens.IsEmpty() {
		return nil
	}
	mutate(&tokens)
	if err := a.setTokensLocked(tokens); err != nil {
		return NewGeneralError(AreaDesktopApp, fmt.Errorf("failed to persist tokens: %w", err))
	}
	return nil
}

// corruptToken appends a marker so the value stays well-formed but no longer
// matches what the server issued. Absent tokens stay absent.
func corruptToken(token string) string {
	if token == "" {
		return ""
	}
	return token + "x"
}

// Status summarizes the held tokens without contacting the network.
type Status struct {
	LoggedIn        bool      `json:"loggedIn"`
	HasAccessToken  bool      `json:"hasAccessToken"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
	HasIDToken      bool      `json:"hasIdToken"`
	Subject         string    `json:"subject,omitempty"`
	Email           string    `json:"email,omitempty"`
	Name            string    `json:"name,omitempty"`
	IDTokenExpiry   time.Time `json:"idTokenExpiry,omitzero"`
	PendingLogins   int       `json:"pendingLogins"`
	PendingLogout   bool      `json:"pendingLogout"`
}

// Status returns a summary of the login state. ID token claims are decoded
// without verification and are for display only.
func (a *Authenticator) Status() Status {
	tokens := a.current()
	s := Status{
		LoggedIn:        !tokens.IsEmpty(),
		HasAccessToken:  tokens.AccessToken != "",
		HasRefreshToken: tokens.RefreshToken != "",
		HasIDToken:      tokens.IDToken != "",
		PendingLogins:   a.correlator.PendingLogins(),
		PendingLogout:   a.correlator.HasPendingLogout(),
	}
	if tokens.IDToken != "" {
		if claims, err := pkgoauth.ParseIDTokenClaims(tokens.IDToken); err == nil {
			s.Subject = claims.Subject
			s.Email = claims.Email
			s.Name = claims.Name
			s.IDTokenExpiry = claims.ExpiresAt
		} else {
			a.logger.Debug("ID token claims could not be decoded", "error", err.Error())
		}
	}
	return s
}

// recordWatcher is implemented by stores that can report external changes.
type recordWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Watch drops the in-memory token cache whenever the persisted record changes,
// so a login or logout performed by another process is picked up. Watching
// stops when ctx is done.
func (a *Authenticator) Watch(ctx context.Context) error {
	w, ok := a.store.(recordWatcher)
	if !ok {
		return errors.New("token store does not support watching")
	}
	return w.Watch(ctx, a.recordChanged)
}

// recordChanged drops the cached token set. When the record is gone it also
// bumps generation, so a refresh already in flight cannot write back a
// session that was cleared elsewhere.
func (a *Authenticator) recordChanged() {
	removed := a.store.Load() == nil

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = false
	if removed {
		a.generation++
	}
}
