package oauth

import (
	"fmt"

	"github.com/pkg/browser"
)

// Browser opens URLs in the user's system browser. Opening is fire-and-forget:
// a nil error only means the launch was requested.
type Browser interface {
	OpenURL(url string) error
}

// BrowserFunc adapts a function to the Browser interface.
type BrowserFunc func(url string) error

// OpenURL implements Browser.
func (f BrowserFunc) OpenURL(url string) error {
	return f(url)
}

// SystemBrowser opens URLs with the platform's default handler
// (xdg-open, open, or rundll32).
type SystemBrowser struct{}

// OpenURL implements Browser.
func (SystemBrowser) OpenURL(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
