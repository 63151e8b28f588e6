package oauth

import (
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// String reports which tokens are held without revealing any of them, so a
// TokenSet passed to fmt or a log call cannot leak credentials.
func (t TokenSet) String() string {
	return fmt.Sprintf("TokenSet{access:%s refresh:%s id:%s}",
		presence(t.AccessToken), presence(t.RefreshToken), presence(t.IDToken))
}

// GoString covers %#v.
func (t TokenSet) GoString() string {
	return "oauth." + t.String()
}

// LogValue implements slog.LogValuer.
func (t TokenSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("access_token", t.AccessToken != ""),
		slog.Bool("refresh_token", t.RefreshToken != ""),
		slog.Bool("id_token", t.IDToken != ""),
	)
}

func presence(token string) string {
	if token == "" {
		return "none"
	}
	return redacted
}
