package keyfile_test

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"

	"github.com/modnet-labs/registry-scheduler/keyfile"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

const testN, testR, testP = 2, 8, 1

func writeEncryptedKeyFile(t *testing.T, path, password, secretPhrase string) {
	t.Helper()

	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	key, err := scrypt.Key([]byte(password), salt, testN, testR, testP, 32)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	plaintext, err := json.Marshal(map[string]string{"secret_phrase": secretPhrase})
	require.NoError(t, err)

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	doc := map[string]any{
		"version": 1,
		"kdf":     "scrypt",
		"salt":    base64.StdEncoding.EncodeToString(salt),
		"params":  map[string]int{"n": testN, "r": testR, "p": testP},
		"nonce":   base64.StdEncoding.EncodeToString(nonce),
		"ciphertext": base64.StdEncoding.EncodeToString(ciphertext),
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestLoadAndDecryptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	writeEncryptedKeyFile(t, path, "correct horse battery staple", "twelve word seed phrase goes here for testing purposes only")

	payload, err := keyfile.LoadAndDecrypt(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "twelve word seed phrase goes here for testing purposes only", payload.SecretPhrase)
}

func TestDecryptWrongPasswordFailsIntegrity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	writeEncryptedKeyFile(t, path, "right-password", "seed phrase")

	_, err := keyfile.LoadAndDecrypt(path, "wrong-password")
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Integrity))
}

func TestLoadRejectsNonPowerOfTwoN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	doc := map[string]any{
		"version":    1,
		"kdf":        "scrypt",
		"salt":       "AAAA",
		"params":     map[string]int{"n": 3, "r": 8, "p": 1},
		"nonce":      "AAAA",
		"ciphertext": "AAAA",
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = keyfile.Load(path)
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Configuration))
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	doc := map[string]any{"version": 2, "kdf": "scrypt", "params": map[string]int{"n": 2, "r": 8, "p": 1}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = keyfile.Load(path)
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Configuration))
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := keyfile.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.NotFound))
}
