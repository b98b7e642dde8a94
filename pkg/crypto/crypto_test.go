package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custody-service/custody_service/pkg/crypto"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	ciphertext, err := crypto.Encrypt("0xdeadbeefprivatekey", "master-key")
	require.NoError(t, err)
	assert.NotEqual(t, "0xdeadbeefprivatekey", ciphertext)

	plaintext, err := crypto.Decrypt(ciphertext, "master-key")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeefprivatekey", plaintext)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	first, err := crypto.Encrypt("secret", "key")
	require.NoError(t, err)
	second, err := crypto.Encrypt("secret", "key")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	ciphertext, err := crypto.Encrypt("secret", "right-key")
	require.NoError(t, err)

	_, err = crypto.Decrypt(ciphertext, "wrong-key")
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := crypto.Decrypt("not-hex", "key")
	assert.Error(t, err)

	_, err = crypto.Decrypt("abcd", "key")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := crypto.HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, crypto.ValidatePassword("hunter2", hash))
	assert.False(t, crypto.ValidatePassword("hunter3", hash))
}
