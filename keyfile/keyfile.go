// Package keyfile decrypts the on-disk encrypted key-file format used by
// the signing subsystems: a scrypt-derived 32-byte key over AES-256-GCM,
// wrapping a JSON payload that carries the account's secret phrase.
package keyfile

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"os"

	"golang.org/x/crypto/scrypt"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// scryptParams mirrors the on-disk params object.
type scryptParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// KeyFile mirrors the on-disk JSON shape.
type KeyFile struct {
	Version    int             `json:"version"`
	KDF        string          `json:"kdf"`
	Salt       string          `json:"salt"`
	Params     scryptParams    `json:"params"`
	Nonce      string          `json:"nonce"`
	Ciphertext string          `json:"ciphertext"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Payload is the decrypted contents of a key file.
type Payload struct {
	SecretPhrase string `json:"secret_phrase"`
}

const keyLength = 32

// Load reads and parses the key file at path without decrypting it.
func Load(path string) (KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyFile{}, toolerrs.New(toolerrs.NotFound, "keyfile.Load", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyFile{}, toolerrs.New(toolerrs.Configuration, "keyfile.Load", err)
	}
	if kf.Version != 1 {
		return KeyFile{}, toolerrs.Newf(toolerrs.Configuration, "keyfile.Load", "unsupported key file version %d", kf.Version)
	}
	if !isPowerOfTwo(kf.Params.N) {
		return KeyFile{}, toolerrs.Newf(toolerrs.Configuration, "keyfile.Load", "scrypt N=%d is not a power of two", kf.Params.N)
	}
	return kf, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Decrypt derives the AES-256-GCM key from password via scrypt and
// decrypts the ciphertext, returning the parsed Payload.
func Decrypt(kf KeyFile, password string) (Payload, error) {
	if kf.KDF != "scrypt" {
		return Payload{}, toolerrs.Newf(toolerrs.Configuration, "keyfile.Decrypt", "unsupported kdf %q", kf.KDF)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Configuration, "keyfile.Decrypt", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Configuration, "keyfile.Decrypt", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Configuration, "keyfile.Decrypt", err)
	}

	key, err := scrypt.Key([]byte(password), salt, kf.Params.N, kf.Params.R, kf.Params.P, keyLength)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Integrity, "keyfile.Decrypt", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Integrity, "keyfile.Decrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Integrity, "keyfile.Decrypt", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Payload{}, toolerrs.New(toolerrs.Integrity, "keyfile.Decrypt", err)
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Payload{}, toolerrs.New(toolerrs.Integrity, "keyfile.Decrypt", err)
	}
	return payload, nil
}

// LoadAndDecrypt is the combined convenience path: read, parse, decrypt.
func LoadAndDecrypt(path, password string) (Payload, error) {
	kf, err := Load(path)
	if err != nil {
		return Payload{}, err
	}
	return Decrypt(kf, password)
}
