package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
)

const secretFileRelPath = "deskauth/ipc.secret"

// ErrNoSecret is returned by ReadSecret when no server has published a secret.
var ErrNoSecret = errors.New("ipc secret not found, is `deskauth serve` running?")

// DefaultSecretFile returns $XDG_RUNTIME_DIR/deskauth/ipc.secret.
func DefaultSecretFile() string {
	return filepath.Join(xdg.RuntimeDir, secretFileRelPath)
}

// NewSecret returns a fresh random secret.
func NewSecret() string {
	// Two random UUIDs give 244 bits of entropy from crypto/rand.
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// WriteSecret stores secret at path, readable by the current user only.
func WriteSecret(path, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(secret), 0600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install secret: %w", err)
	}
	return nil
}

// ReadSecret loads the secret written by WriteSecret.
func ReadSecret(path string) (string, error) {
	// #nosec G304 -- path comes from the user's configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSecret
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", ErrNoSecret
	}
	return secret, nil
}

// RemoveSecret deletes the secret file. A missing file is not an error.
func RemoveSecret(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
