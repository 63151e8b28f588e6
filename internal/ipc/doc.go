// Package ipc is the loopback transport between the privileged deskauth
// process (`deskauth serve`) and its callers.
//
// The server exposes every Authenticator operation under /v1. Each of those
// requests must carry the shared secret as a bearer token; the secret is
// generated at start and written to a 0600 file that only the current user
// can read. Requests without it are rejected with an IpcForbidden error.
//
// Two unauthenticated routes accept the browser's loopback redirects
// (/callback and /logout-callback by default). They only forward protocol
// values to the Authenticator's redirect correlator and render a small page.
//
// Errors cross the boundary as oauth.ErrorData JSON. Client reconstructs them
// with oauth.FromData so callers see the same *oauth.AuthError the server
// produced.
package ipc
