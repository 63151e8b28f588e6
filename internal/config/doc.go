// Package config provides configuration management for deskauth.
//
// Configuration is loaded from a single directory. The default is
// $XDG_CONFIG_HOME/deskauth (usually ~/.config/deskauth); commands accept
// --config-path to point elsewhere.
//
// # Sources
//
// Values are layered, later sources winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. config.yaml in the configuration directory
//  3. DESKAUTH_* environment variables, including those set by a .env file in
//     the configuration directory
//
// # Example
//
//	issuer: https://login.example.com/realms/desktop
//	clientID: deskauth
//	redirectURI: http://127.0.0.1:8731/callback
//	postLogoutRedirectURI: http://127.0.0.1:8731/logout-callback
//	logout:
//	  style: standard
//	logLevel: info
//
// Validate reports every problem at once as ValidationErrors. Load failures
// are returned as ConfigurationError.
package config
