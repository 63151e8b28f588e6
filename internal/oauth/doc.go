// Package oauth implements the desktop authenticator core: signing a user in and
// out of an OAuth 2.0 / OpenID Connect authorization server through the system
// browser, and keeping the resulting token set across restarts.
//
// # Flow
//
// Login uses the Authorization Code grant with PKCE:
//
//  1. Authenticator.Login fetches discovery metadata (MetadataCache)
//  2. A fresh PKCE verifier and state are generated
//  3. The pending login is registered with the RedirectCorrelator under its state
//  4. The system browser is opened at the authorization URL
//  5. The redirect arrives out of band and is handed to Authenticator.OnRedirect
//  6. The correlator resolves the entry for that state; the code is exchanged
//  7. The token set is written through the TokenStore
//
// Responses are matched to requests only by state, never by arrival order.
// Unknown states and unrelated URLs are dropped silently.
//
// # Components
//
//   - RedirectCorrelator: pending logins keyed by state plus a single logout slot
//   - TokenStore: encrypted, atomically replaced record holding the token set
//   - KeyringProtector: XChaCha20-Poly1305 with a data key kept in the OS keyring
//   - MetadataCache: process-lifetime cache of the OIDC discovery document
//   - RefreshSerializer: at most one refresh in flight; joiners share its outcome
//   - Authenticator: the orchestrator owning the in-memory token set
//
// # Errors
//
// Every failure leaving this package is an *AuthError with a Code from a closed
// set. LoginRequired is a signal to start a login rather than a failure.
// ErrorData is the flat form used across process boundaries.
//
// # Security
//
// Token values are never logged. The record on disk is only readable with the
// per-user key held by the OS keyring; an unreadable record is treated as
// "not logged in". An invalid_grant on refresh clears the login state instead of
// surfacing an error.
package oauth
