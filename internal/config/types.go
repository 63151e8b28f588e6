package config

import "time"

// Config is the top-level configuration structure for deskauth.
type Config struct {
	// Issuer is the authorization server's issuer URL. Discovery is fetched from
	// {issuer}/.well-known/openid-configuration.
	Issuer string `yaml:"issuer"`

	ClientID string `yaml:"clientID"`
	Scope    string `yaml:"scope,omitempty"`

	RedirectURI           string `yaml:"redirectURI"`
	PostLogoutRedirectURI string `yaml:"postLogoutRedirectURI,omitempty"`

	Logout     LogoutConfig     `yaml:"logout,omitempty"`
	TokenStore TokenStoreConfig `yaml:"tokenStore,omitempty"`
	IPC        IPCConfig        `yaml:"ipc,omitempty"`

	LogLevel  string `yaml:"logLevel,omitempty"`  // debug, info, warn, error
	LogFormat string `yaml:"logFormat,omitempty"` // text or json

	HTTPTimeout      time.Duration `yaml:"httpTimeout,omitempty"`
	MaxPendingLogins int           `yaml:"maxPendingLogins,omitempty"`
}

// LogoutConfig selects how the end-session URL is built.
type LogoutConfig struct {
	Style    string `yaml:"style,omitempty"`    // standard or cognito
	Endpoint string `yaml:"endpoint,omitempty"` // overrides the discovered endpoint
}

// TokenStoreConfig configures where and how tokens are persisted.
type TokenStoreConfig struct {
	Path           string `yaml:"path,omitempty"` // default: $XDG_DATA_HOME/deskauth/tokens.bin
	KeyringService string `yaml:"keyringService,omitempty"`
}

// IPCConfig configures the loopback transport between the CLI and the serving process.
type IPCConfig struct {
	Address    string `yaml:"address,omitempty"`
	SecretFile string `yaml:"secretFile,omitempty"` // default: $XDG_RUNTIME_DIR/deskauth/ipc.secret
}
