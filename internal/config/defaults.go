package config

import (
	"time"

	"github.com/giantswarm/deskauth/internal/oauth"
	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

const (
	// DefaultIPCAddress is the loopback address the serving process listens on.
	// The browser callbacks are served here too.
	DefaultIPCAddress = "127.0.0.1:8731"

	DefaultRedirectURI           = "http://" + DefaultIPCAddress + "/callback"
	DefaultPostLogoutRedirectURI = "http://" + DefaultIPCAddress + "/logout-callback"

	DefaultHTTPTimeout = 30 * time.Second
)

// GetDefaultConfig returns the default configuration. Issuer and client ID
// have no default.
func GetDefaultConfig() Config {
	return Config{
		Scope:                 pkgoauth.DefaultScope,
		RedirectURI:           DefaultRedirectURI,
		PostLogoutRedirectURI: DefaultPostLogoutRedirectURI,
		Logout: LogoutConfig{
			Style: oauth.LogoutStyleStandard,
		},
		TokenStore: TokenStoreConfig{
			KeyringService: oauth.DefaultKeyringService,
		},
		IPC: IPCConfig{
			Address: DefaultIPCAddress,
		},
		LogLevel:         "info",
		LogFormat:        "text",
		HTTPTimeout:      DefaultHTTPTimeout,
		MaxPendingLogins: oauth.DefaultMaxPendingLogins,
	}
}
