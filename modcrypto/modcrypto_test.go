package modcrypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/modcrypto"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

func samplePubkey() [32]byte {
	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	return pk
}

func TestSS58RoundTrip(t *testing.T) {
	pk := samplePubkey()
	addr := modcrypto.Encode(pk, 42)

	decoded, err := modcrypto.Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, pk, decoded.Pubkey)
	assert.Equal(t, uint8(42), decoded.Prefix)
}

func TestSS58ChecksumFailure(t *testing.T) {
	pk := samplePubkey()
	addr := modcrypto.Encode(pk, 42)
	tampered := []byte(addr)
	tampered[0] = atomicFlip(tampered[0])
	_, err := modcrypto.Decode(string(tampered))
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Integrity))
}

func atomicFlip(b byte) byte {
	if b == 'a' {
		return 'b'
	}
	return 'a'
}

func TestSS58AcceptsHexPubkey(t *testing.T) {
	addr, err := modcrypto.Decode("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.NoError(t, err)
	assert.Equal(t, samplePubkey(), addr.Pubkey)
}

func TestMultisigOrderInvariant(t *testing.T) {
	a := samplePubkey()
	b := samplePubkey()
	b[0] = 0xff

	addr1 := modcrypto.DeriveMultisig([][32]byte{a, b}, 2, 42)
	addr2 := modcrypto.DeriveMultisig([][32]byte{b, a}, 2, 42)
	assert.Equal(t, addr1, addr2)
}

func TestParseDigestForms(t *testing.T) {
	raw := "sha256:0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
	d, err := modcrypto.ParseDigest(raw)
	require.NoError(t, err)
	assert.Equal(t, samplePubkey(), d)
}

func TestCheckDigestMismatch(t *testing.T) {
	zeroDigest := "sha256:" + hexZeroes(64)
	err := modcrypto.CheckDigest([]byte("hello"), zeroDigest)
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Integrity))
}

func hexZeroes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func TestParseSignatureInvalid(t *testing.T) {
	_, err := modcrypto.ParseSignature("not-a-signature")
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Integrity))
}
