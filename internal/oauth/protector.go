package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultKeyringService is the keychain service name holding the data key.
const DefaultKeyringService = "deskauth"

// keyringUser is the keychain account under which the data key is stored.
const keyringUser = "token-encryption-key"

var (
	// ErrSecretStorageUnavailable means the OS secret store cannot be used. Any
	// operation that needs stored tokens must treat this as fatal.
	ErrSecretStorageUnavailable = errors.New("OS secret storage is unavailable")

	// ErrCiphertextInvalid means a record could not be opened with the current key.
	ErrCiphertextInvalid = errors.New("ciphertext is invalid or was sealed with another key")
)

// SecretProtector encrypts and decrypts data scoped to the current OS user.
type SecretProtector interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeyringProtector seals data with XChaCha20-Poly1305 under a random 256-bit key
// kept in the OS keychain (macOS Keychain, Windows Credential Manager, Secret Service).
type KeyringProtector struct {
	key []byte
}

// NewKeyringProtector loads the data key from the keychain, creating it on first use.
// The error wraps ErrSecretStorageUnavailable when the keychain cannot be reached.
func NewKeyringProtector(service string) (*KeyringProtector, error) {
	if service == "" {
		service = DefaultKeyringService
	}

	encoded, err := keyring.Get(service, keyringUser)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate token encryption key: %w", err)
		}
		if err := keyring.Set(service, keyringUser, base64.StdEncoding.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretStorageUnavailable, err)
		}
		return &KeyringProtector{key: key}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrSecretStorageUnavailable, err)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: stored token encryption key is malformed", ErrSecretStorageUnavailable)
	}
	return &KeyringProtector{key: key}, nil
}

// Encrypt seals plaintext. The random nonce is prepended to the ciphertext.
func (p *KeyringProtector) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (p *KeyringProtector) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextInvalid
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}
