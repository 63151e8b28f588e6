package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"

	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// DefaultTokenRecordName is the token record location relative to the XDG data home.
const DefaultTokenRecordName = "deskauth/tokens.bin"

// TokenPersister is the storage contract the Authenticator depends on.
type TokenPersister interface {
	Load() *pkgoauth.TokenSet
	Save(tokens pkgoauth.TokenSet) error
	Delete() error
}

// TokenStore persists the token triple as a single encrypted record.
//
// SECURITY: This store handles sensitive OAuth credentials.
//   - The record is sealed by a SecretProtector before it touches disk
//   - Files are created with 0600 permissions, the directory with 0700
//   - Writes go to a temporary file that is renamed over the record
//   - Token values are NEVER logged
type TokenStore struct {
	mu        sync.Mutex
	path      string
	protector SecretProtector
	logger    *slog.Logger
}

// TokenStoreConfig configures the token store.
type TokenStoreConfig struct {
	// Path is the token record file. Defaults to $XDG_DATA_HOME/deskauth/tokens.bin.
	Path string

	// Protector seals and opens the record. Required.
	Protector SecretProtector

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewTokenStore creates a token store, creating the record directory if needed.
func NewTokenStore(cfg TokenStoreConfig) (*TokenStore, error) {
	if cfg.Protector == nil {
		return nil, fmt.Errorf("token store requires a secret protector: %w", ErrSecretStorageUnavailable)
	}

	path := cfg.Path
	if path == "" {
		var err error
		path, err = xdg.DataFile(DefaultTokenRecordName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve token record path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenStore{
		path:      filepath.Clean(path),
		protector: cfg.Protector,
		logger:    logger,
	}, nil
}

// Path returns the record location.
func (s *TokenStore) Path() string {
	return s.path
}

// Load returns the stored tokens, or nil when the record is missing, corrupted,
// or cannot be decrypted. Unrecoverable tokens are treated as "never logged in".
func (s *TokenStore) Load() *pkgoauth.TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path comes from configuration, not request input
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read token record", "path", s.path, "error", err.Error())
		}
		return nil
	}

	plaintext, err := s.protector.Decrypt(sealed)
	if err != nil {
		s.logger.Warn("Token record could not be decrypted, treating as logged out",
			"event", "token_record_unreadable",
			"path", s.path,
			"error", err.Error())
		return nil
	}

	var tokens pkgoauth.TokenSet
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		s.logger.Warn("Token record is corrupted, treating as logged out",
			"event", "token_record_unreadable",
			"path", s.path,
			"error", err.Error())
		return nil
	}

	if tokens.IsEmpty() {
		return nil
	}
	return &tokens
}

// Save replaces the record with the given tokens.
func (s *TokenStore) Save(tokens pkgoauth.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	sealed, err := s.protector.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	if err := s.writeAtomic(sealed); err != nil {
		s.logger.Warn("SECURITY_AUDIT: OAuth token storage failed",
			"event", "token_store_failed",
			"path", s.path,
			"error", err.Error())
		return err
	}

	s.logger.Info("SECURITY_AUDIT: OAuth tokens stored",
		"event", "token_stored",
		"has_access_token", tokens.AccessToken != "",
		"has_refresh_token", tokens.RefreshToken != "",
		"has_id_token", tokens.IDToken != "")
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *TokenStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("SECURITY_AUDIT: OAuth token deletion failed",
			"event", "token_delete_failed",
			"path", s.path,
			"error", err.Error())
		return fmt.Errorf("failed to delete token record: %w", err)
	}

	s.logger.Info("SECURITY_AUDIT: OAuth tokens deleted",
		"event", "token_deleted",
		"path", s.path)
	return nil
}

// writeAtomic writes data to a temporary file in the record directory and renames
// it over the record, so a crash leaves either the old or the new record.
func (s *TokenStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token record: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the record is written, replaced, or removed by
// any process, until ctx is cancelled.
func (s *TokenStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create token record watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch token record directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Token record watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}
