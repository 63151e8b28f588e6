package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/deskauth/pkg/logging"
)

const (
	configDirName  = "deskauth"
	configFileName = "config.yaml"
	envFileName    = ".env"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DESKAUTH_"
)

// GetDefaultConfigPath returns $XDG_CONFIG_HOME/deskauth.
var GetDefaultConfigPath = func() string {
	return filepath.Join(xdg.ConfigHome, configDirName)
}

// LoadConfig loads configuration from a single directory: defaults, then
// config.yaml, then DESKAUTH_* environment variables. A .env file in the same
// directory is loaded into the environment first without overriding variables
// that are already set. A missing config.yaml is not an error.
func LoadConfig(configPath string) (Config, error) {
	config := GetDefaultConfig()

	envFilePath := filepath.Join(configPath, envFileName)
	if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, ConfigurationError{
			FilePath:  envFilePath,
			ErrorType: ErrorTypeParse,
			Message:   "failed to load environment file",
			Details:   err.Error(),
		}
	}

	configFilePath := filepath.Join(configPath, configFileName)
	// #nosec G304 -- path is chosen by the user running the CLI
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: ErrorTypeIO,
			Message:   "failed to read configuration file",
			Details:   err.Error(),
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, ConfigurationError{
				FilePath:  configFilePath,
				ErrorType: ErrorTypeParse,
				Message:   "configuration file is malformed",
				Details:   err.Error(),
			}
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// applyEnvOverrides overwrites fields whose DESKAUTH_* variable is set.
func applyEnvOverrides(config *Config) error {
	stringFields := map[string]*string{
		"ISSUER":                   &config.Issuer,
		"CLIENT_ID":                &config.ClientID,
		"SCOPE":                    &config.Scope,
		"REDIRECT_URI":             &config.RedirectURI,
		"POST_LOGOUT_REDIRECT_URI": &config.PostLogoutRedirectURI,
		"LOGOUT_STYLE":             &config.Logout.Style,
		"LOGOUT_ENDPOINT":          &config.Logout.Endpoint,
		"TOKEN_STORE_PATH":         &config.TokenStore.Path,
		"KEYRING_SERVICE":          &config.TokenStore.KeyringService,
		"IPC_ADDRESS":              &config.IPC.Address,
		"IPC_SECRET_FILE":          &config.IPC.SecretFile,
		"LOG_LEVEL":                &config.LogLevel,
		"LOG_FORMAT":               &config.LogFormat,
	}
	for name, field := range stringFields {
		if value, ok := os.LookupEnv(EnvPrefix + name); ok {
			*field = value
		}
	}

	if value, ok := os.LookupEnv(EnvPrefix + "HTTP_TIMEOUT"); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return ConfigurationError{
				FilePath:  EnvPrefix + "HTTP_TIMEOUT",
				ErrorType: ErrorTypeParse,
				Message:   "invalid duration",
				Details:   err.Error(),
			}
		}
		config.HTTPTimeout = timeout
	}

	if value, ok := os.LookupEnv(EnvPrefix + "MAX_PENDING_LOGINS"); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return ConfigurationError{
				FilePath:  EnvPrefix + "MAX_PENDING_LOGINS",
				ErrorType: ErrorTypeParse,
				Message:   "invalid integer",
				Details:   err.Error(),
			}
		}
		config.MaxPendingLogins = n
	}
	return nil
}

// String renders a one-line summary safe for logs.
func (c Config) String() string {
	return fmt.Sprintf("issuer=%s clientID=%s redirectURI=%s logoutStyle=%s ipc=%s",
		c.Issuer, c.ClientID, c.RedirectURI, c.Logout.Style, c.IPC.Address)
}
