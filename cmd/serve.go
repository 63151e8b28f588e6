package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/giantswarm/deskauth/internal/config"
	"github.com/giantswarm/deskauth/internal/ipc"
	"github.com/giantswarm/deskauth/internal/oauth"
	"github.com/giantswarm/deskauth/internal/resource"
	"github.com/giantswarm/deskauth/pkg/logging"
	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authenticator and accept requests from the CLI and UI",
	Long: `Runs the authenticator in the foreground.

The process owns the token record and the OS keychain entry used to encrypt
it. It listens on the configured loopback address for:

  - operation requests from 'deskauth' commands, authenticated by a secret
    written to $XDG_RUNTIME_DIR/deskauth/ipc.secret
  - the browser's loopback redirects after sign-in and sign-out
  - Prometheus scrapes on /metrics

Under systemd the process reports readiness with sd_notify.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// components holds everything serve wires together.
type components struct {
	auth     *oauth.Authenticator
	store    *oauth.TokenStore
	userInfo *resource.Client
	registry *prometheus.Registry
}

func buildComponents(c config.Config) (*components, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	protector, err := oauth.NewKeyringProtector(c.TokenStore.KeyringService)
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, err)
	}
	store, err := oauth.NewTokenStore(oauth.TokenStoreConfig{
		Path:      c.TokenStore.Path,
		Protector: protector,
		Logger:    logging.Logger("TokenStore"),
	})
	if err != nil {
		return nil, oauth.NewGeneralError(oauth.AreaDesktopApp, err)
	}

	logoutURLs, err := oauth.NewLogoutURLBuilder(c.Logout.Style, c.ClientID, c.PostLogoutRedirectURI, c.Logout.Endpoint)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: c.HTTPTimeout}
	metadata := oauth.NewMetadataCache(c.Issuer, httpClient, logging.Logger("Metadata"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auth, err := oauth.NewAuthenticator(oauth.AuthenticatorConfig{
		ClientID:              c.ClientID,
		RedirectURI:           c.RedirectURI,
		PostLogoutRedirectURI: c.PostLogoutRedirectURI,
		Scope:                 c.Scope,
		Metadata:              metadata,
		Store:                 store,
		Browser:               oauth.SystemBrowser{},
		LogoutURLs:            logoutURLs,
		Client: pkgoauth.NewClient(
			pkgoauth.WithHTTPClient(httpClient),
			pkgoauth.WithLogger(logging.Logger("TokenClient")),
		),
		Metrics:          oauth.NewMetrics(registry),
		Logger:           logging.Logger("Authenticator"),
		MaxPendingLogins: c.MaxPendingLogins,
	})
	if err != nil {
		return nil, err
	}

	userInfo := resource.NewClient(auth, metadata,
		resource.WithHTTPClient(httpClient),
		resource.WithLogger(logging.Logger("Resource")))

	return &components{auth: auth, store: store, userInfo: userInfo, registry: registry}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	logging.Info("Serve", "Starting deskauth: %s", cfg.String())
	logging.Info("Serve", "Token record at %s", comps.store.Path())

	if err := comps.auth.Watch(ctx); err != nil {
		// Not fatal: this process stays correct, it just won't notice edits by others.
		logging.Warn("Serve", "Token record watching disabled: %v", err)
	}

	secret := ipc.NewSecret()
	srv, err := ipc.NewServer(ipc.ServerConfig{
		Auth:                  comps.auth,
		UserInfo:              comps.userInfo,
		Secret:                secret,
		RedirectURI:           cfg.RedirectURI,
		PostLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		Gatherer:              comps.registry,
		Logger:                logging.Logger("IPC"),
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.IPC.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.IPC.Address, err)
	}

	secretFile := secretFilePath(cfg)
	if err := ipc.WriteSecret(secretFile, secret); err != nil {
		_ = listener.Close()
		return err
	}
	defer func() {
		if err := ipc.RemoveSecret(secretFile); err != nil {
			logging.Warn("Serve", "Failed to remove IPC secret: %v", err)
		}
	}()
	logging.Audit(logging.AuditEvent{
		Action:  "ipc_secret_published",
		Outcome: "success",
		Target:  secretFile,
	})

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Debug("Serve", "sd_notify failed: %v", err)
	}
	logging.Info("Serve", "Listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, listener) }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		logging.Info("Serve", "Shutting down")
		err = <-errCh
	}
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
