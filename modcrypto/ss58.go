// Package modcrypto implements the address encoding, digest handling, and
// signature verification primitives module metadata relies on: SS58
// addresses, multisig derivation, and sr25519 signature checks over a fixed
// signing context.
package modcrypto

import (
	"encoding/hex"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// DefaultSS58Prefix is the prefix Decode reports for an address given as a
// hex public key, which carries no prefix of its own.
const DefaultSS58Prefix = 42

// ss58Magic is the fixed magic byte string prepended before hashing, per
// the Substrate SS58 address format.
var ss58Magic = []byte("SS58PRE")

// Address is a decoded SS58 address: the network prefix and the 32-byte
// public key it wraps.
type Address struct {
	Prefix uint8
	Pubkey [32]byte
}

// Decode parses an SS58-encoded address or a 64-character hex public key
// literal. The 35-byte Base58 payload is [prefix(1)][pubkey(32)][checksum(2)];
// the checksum must equal the first two bytes of
// Blake2b-512("SS58PRE" ‖ prefix ‖ pubkey).
func Decode(addr string) (Address, error) {
	if pk, ok := decodeHexPubkey(addr); ok {
		return Address{Prefix: DefaultSS58Prefix, Pubkey: pk}, nil
	}

	raw, err := base58.Decode(addr)
	if err != nil {
		return Address{}, toolerrs.New(toolerrs.Integrity, "modcrypto.Decode", err)
	}
	if len(raw) != 35 {
		return Address{}, toolerrs.Newf(toolerrs.Integrity, "modcrypto.Decode", "ss58 payload has %d bytes, want 35", len(raw))
	}

	prefix := raw[0]
	var pubkey [32]byte
	copy(pubkey[:], raw[1:33])
	wantChecksum := raw[33:35]

	gotChecksum := checksum(prefix, pubkey[:])
	if !bytesEqual(gotChecksum[:2], wantChecksum) {
		return Address{}, toolerrs.Newf(toolerrs.Integrity, "modcrypto.Decode", "ss58 checksum mismatch for prefix %d", prefix)
	}

	return Address{Prefix: prefix, Pubkey: pubkey}, nil
}

// Encode renders pubkey as an SS58 address under prefix.
func Encode(pubkey [32]byte, prefix uint8) string {
	cs := checksum(prefix, pubkey[:])
	payload := make([]byte, 0, 35)
	payload = append(payload, prefix)
	payload = append(payload, pubkey[:]...)
	payload = append(payload, cs[:2]...)
	return base58.Encode(payload)
}

func checksum(prefix uint8, pubkey []byte) [64]byte {
	buf := make([]byte, 0, len(ss58Magic)+1+len(pubkey))
	buf = append(buf, ss58Magic...)
	buf = append(buf, prefix)
	buf = append(buf, pubkey...)
	return blake2b.Sum512(buf)
}

func decodeHexPubkey(s string) ([32]byte, bool) {
	var pk [32]byte
	trimmed := s
	if len(trimmed) == 66 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 64 {
		return pk, false
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return pk, false
	}
	copy(pk[:], b)
	return pk, true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
