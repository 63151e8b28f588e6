package ipc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/deskauth/internal/oauth"
	"github.com/giantswarm/deskauth/internal/resource"
)

// Authenticator is the subset of *oauth.Authenticator served over IPC.
type Authenticator interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	TokenRefresh(ctx context.Context) error
	GetAccessToken() (string, error)
	ClearLoginState() error
	ExpireAccessToken() error
	ExpireRefreshToken() error
	OnRedirect(rawURL string) bool
	Status() oauth.Status
}

// UserInfoSource fetches the signed-in user's profile.
type UserInfoSource interface {
	UserInfo(ctx context.Context) (*resource.UserInfo, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Auth Authenticator

	// UserInfo backs GET /v1/userinfo. The route answers 404 when nil.
	UserInfo UserInfoSource

	// Secret must be presented as a bearer token on every /v1 request.
	Secret string

	// Loopback browser redirects are served on the paths of these URIs when
	// they use http or https. Custom-scheme URIs are delivered via
	// POST /v1/redirect instead.
	RedirectURI           string
	PostLogoutRedirectURI string

	// Gatherer backs GET /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is the IPC HTTP server.
type Server struct {
	auth     Authenticator
	userInfo UserInfoSource
	secret   []byte
	logger   *slog.Logger

	loginCallback  *url.URL
	logoutCallback *url.URL

	router chi.Router
}

// Response bodies of the operation endpoints.
type (
	TokenResponse struct {
		AccessToken string `json:"accessToken"`
	}
	RedirectRequest struct {
		URL string `json:"url"`
	}
	RedirectResponse struct {
		Delivered bool `json:"delivered"`
	}
)

// NewServer builds the router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("ipc: Auth is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("ipc: Secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		auth:           cfg.Auth,
		userInfo:       cfg.UserInfo,
		secret:         []byte(cfg.Secret),
		logger:         logger,
		loginCallback:  loopbackCallback(cfg.RedirectURI),
		logoutCallback: loopbackCallback(cfg.PostLogoutRedirectURI),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.loginCallback != nil {
		r.Get(s.loginCallback.Path, s.handleCallback(s.loginCallback, "sign-in"))
	}
	if s.logoutCallback != nil && (s.loginCallback == nil || s.logoutCallback.Path != s.loginCallback.Path) {
		r.Get(s.logoutCallback.Path, s.handleCallback(s.logoutCallback, "sign-out"))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Post("/login", s.handleOperation(s.auth.Login))
		r.Post("/logout", s.handleOperation(s.auth.Logout))
		r.Post("/refresh", s.handleOperation(s.auth.TokenRefresh))
		r.Post("/clear", s.handleOperation(ignoreContext(s.auth.ClearLoginState)))
		r.Post("/expire/access", s.handleOperation(ignoreContext(s.auth.ExpireAccessToken)))
		r.Post("/expire/refresh", s.handleOperation(ignoreContext(s.auth.ExpireRefreshToken)))
		r.Post("/redirect", s.handleRedirect)
		r.Get("/token", s.handleToken)
		r.Get("/status", s.handleStatus)
		r.Get("/userinfo", s.handleUserInfo)
	})

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves on listener until ctx is done, then shuts down gracefully.
// Login and logout requests are long-lived, so no write timeout is set.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ipc server shutdown: %w", err)
		}
		return nil
	}
}

// loopbackCallback returns the parsed URI when it can be served by this
// process, nil otherwise.
func loopbackCallback(rawURI string) *url.URL {
	if rawURI == "" {
		return nil
	}
	u, err := url.Parse(rawURI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), s.secret) != 1 {
			s.logger.Warn("SECURITY_AUDIT: rejected IPC request from untrusted sender",
				"event", "ipc_forbidden",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)
			s.writeError(w, oauth.NewIPCForbiddenError("missing or invalid IPC secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs method, path and status. Query strings are omitted since
// callbacks carry authorization codes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("IPC request",
				"request_id", chimiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func ignoreContext(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

func (s *Server) handleOperation(op func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.auth.GetAccessToken()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.Status())
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if s.userInfo == nil {
		http.NotFound(w, r)
		return
	}
	info, err := s.userInfo.UserInfo(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	var req RedirectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		aerr := oauth.NewGeneralError(oauth.AreaIPC, fmt.Errorf("invalid redirect request: %w", err))
		aerr.StatusCode = http.StatusBadRequest
		s.writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, RedirectResponse{Delivered: s.auth.OnRedirect(req.URL)})
}

// handleCallback forwards a loopback browser redirect to the correlator. The
// configured URI is used as the base so that host aliases such as localhost
// still match.
func (s *Server) handleCallback(base *url.URL, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := *base
		u.RawQuery = r.URL.RawQuery
		u.Fragment = ""

		page := callbackPage{Action: action, Time: time.Now()}
		if !s.auth.OnRedirect(u.String()) {
			page.Outcome = outcomeExpired
			renderCallback(w, http.StatusBadRequest, page)
			return
		}

		query := r.URL.Query()
		if e := query.Get("error"); e != "" {
			page.Outcome = outcomeError
			page.Error = e
			page.Description = query.Get("error_description")
		} else {
			page.Outcome = outcomeSuccess
		}
		renderCallback(w, http.StatusOK, page)
	}
}

// httpStatus maps an error code to the status used on the wire.
func httpStatus(e *oauth.AuthError) int {
	switch e.Code {
	case oauth.CodeLoginRequired:
		return http.StatusUnauthorized
	case oauth.CodeIPCForbidden:
		return http.StatusForbidden
	case oauth.CodeGeneralError:
		if e.Area == oauth.AreaIPC && e.StatusCode == http.StatusBadRequest {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	aerr := oauth.AsAuthError(err)
	status := httpStatus(aerr)
	if status >= http.StatusInternalServerError {
		s.logger.Error("IPC operation failed", "code", aerr.Code, "area", aerr.Area, "error", aerr)
	}
	writeJSON(w, status, aerr.Data())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
