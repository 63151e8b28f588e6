// Package logging provides the subsystem-tagged logger used across deskauth.
//
// It is a thin layer over log/slog: the CLI initialises it once, after which
// both the package-level helpers and slog.Default() write through the same handler.
//
// # Usage Examples
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Serve", "listening on %s", addr)
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Error("Authenticator", err, "token refresh failed")
//
// Components that accept an injected *slog.Logger get one with:
//
//	logger := logging.Logger("TokenStore")
//
// # Audit Logging
//
// Security-sensitive operations (tokens stored, cleared, state mismatch) are
// recorded with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "tokens_cleared",
//	    Outcome: "success",
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix for easy filtering.
// Token values are never logged.
package logging
