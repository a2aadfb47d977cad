package modcrypto

import (
	"bytes"
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// multisigMagic is the Substrate utility-pallet prefix used to derive
// deterministic multisig account ids.
var multisigMagic = []byte("modlpy/utilisig")

// DeriveMultisig computes the SS58 address controlled jointly by signers
// under threshold. Signers are sorted before hashing so address derivation
// is insensitive to caller-supplied ordering:
// account_id = Blake2b-512("modlpy/utilisig" ‖ concat(sorted pubkeys) ‖ threshold_le_u16)[..32]
func DeriveMultisig(signers [][32]byte, threshold uint16, prefix uint8) string {
	sorted := make([][32]byte, len(signers))
	copy(sorted, signers)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	buf := make([]byte, 0, len(multisigMagic)+32*len(sorted)+2)
	buf = append(buf, multisigMagic...)
	for _, pk := range sorted {
		buf = append(buf, pk[:]...)
	}
	thresholdLE := make([]byte, 2)
	binary.LittleEndian.PutUint16(thresholdLE, threshold)
	buf = append(buf, thresholdLE...)

	digest := blake2b.Sum512(buf)
	var accountID [32]byte
	copy(accountID[:], digest[:32])

	return Encode(accountID, prefix)
}
