package modcrypto

import (
	"encoding/base64"
	"encoding/hex"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// signingContext is the fixed sr25519 signing context module metadata is
// signed under. Signatures are always taken over the 32-byte digest, never
// the raw artifact bytes (spec §9 deprecates the artifact-path variant).
var signingContext = []byte("module_digest")

// ParseSignature accepts a signature in 128-hex or base64 form and returns
// the decoded 64 bytes.
func ParseSignature(raw string) ([64]byte, error) {
	var out [64]byte

	if b, err := hex.DecodeString(raw); err == nil && len(b) == 64 {
		copy(out[:], b)
		return out, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 64 {
		copy(out[:], b)
		return out, nil
	}

	return out, toolerrs.Newf(toolerrs.Integrity, "modcrypto.ParseSignature", "signature is neither 128-hex nor base64")
}

// VerifySr25519 verifies that sig is a valid sr25519 signature by owner over
// digest under the fixed "module_digest" signing context.
func VerifySr25519(owner [32]byte, digest [32]byte, sig [64]byte) error {
	pub := &schnorrkel.PublicKey{}
	if err := pub.Decode(owner); err != nil {
		return toolerrs.New(toolerrs.Integrity, "modcrypto.VerifySr25519", err)
	}

	var sigBytes schnorrkel.Signature
	if err := sigBytes.Decode(sig); err != nil {
		return toolerrs.New(toolerrs.Integrity, "modcrypto.VerifySr25519", err)
	}

	transcript := schnorrkel.NewSigningContext(signingContext, digest[:])
	ok, err := pub.Verify(&sigBytes, transcript)
	if err != nil {
		return toolerrs.New(toolerrs.Integrity, "modcrypto.VerifySr25519", err)
	}
	if !ok {
		return toolerrs.Newf(toolerrs.Integrity, "modcrypto.VerifySr25519", "signature does not verify for owner")
	}
	return nil
}
