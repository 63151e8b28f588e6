package oauth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringProtector_RoundTrip(t *testing.T) {
	keyring.MockInit()

	p, err := NewKeyringProtector("deskauth-protector-test")
	require.NoError(t, err)

	sealed, err := p.Encrypt([]byte(`{"accessToken":"secret"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret")

	plaintext, err := p.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"accessToken":"secret"}`, string(plaintext))
}

func TestKeyringProtector_KeyIsReused(t *testing.T) {
	keyring.MockInit()

	first, err := NewKeyringProtector("deskauth-protector-test")
	require.NoError(t, err)
	sealed, err := first.Encrypt([]byte("payload"))
	require.NoError(t, err)

	// A restarted process finds the same key in the keyring.
	second, err := NewKeyringProtector("deskauth-protector-test")
	require.NoError(t, err)
	plaintext, err := second.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plaintext))
}

func TestKeyringProtector_RejectsForeignCiphertext(t *testing.T) {
	keyring.MockInit()

	a, err := NewKeyringProtector("service-a")
	require.NoError(t, err)
	b, err := NewKeyringProtector("service-b")
	require.NoError(t, err)

	sealed, err := a.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrCiphertextInvalid)

	_, err = a.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestKeyringProtector_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service on the bus"))
	t.Cleanup(keyring.MockInit)

	_, err := NewKeyringProtector("deskauth-protector-test")
	assert.ErrorIs(t, err, ErrSecretStorageUnavailable)
}

func TestKeyringProtector_MalformedKey(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("deskauth-malformed", keyringUser, "not base64!"))

	_, err := NewKeyringProtector("deskauth-malformed")
	assert.ErrorIs(t, err, ErrSecretStorageUnavailable)
}
