package modcrypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// ParseDigest accepts a digest in any of the forms module metadata carries:
// "sha256:<hex>", bare 64-char hex, or base64. It returns the raw 32 bytes.
func ParseDigest(raw string) ([32]byte, error) {
	var out [32]byte

	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "sha256:")

	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		copy(out[:], b)
		return out, nil
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		copy(out[:], b)
		return out, nil
	}

	return out, toolerrs.Newf(toolerrs.Integrity, "modcrypto.ParseDigest", "digest %q is neither 32-byte hex nor base64", raw)
}

// VerifyDigest reports whether sha256(bytes) equals want.
func VerifyDigest(bytes []byte, want [32]byte) bool {
	got := sha256.Sum256(bytes)
	return got == want
}

// CheckDigest verifies bytes against the digest string raw, returning an
// Integrity error on mismatch or malformed digest.
func CheckDigest(bytes []byte, raw string) error {
	want, err := ParseDigest(raw)
	if err != nil {
		return err
	}
	if !VerifyDigest(bytes, want) {
		return toolerrs.Newf(toolerrs.Integrity, "modcrypto.CheckDigest", "sha256 mismatch: artifact does not match digest %q", raw)
	}
	return nil
}
