package ident

import (
	"crypto/rand"
	"io"
	"math/big"
)

// GenerateTxID produces a time-ordered 26-character Crockford base32
// transaction id in the ULID layout: the first 10 characters encode
// nowMs (48 bits of millisecond timestamp), the remaining 16 encode 80
// bits of randomness read from src. Two ids generated with increasing
// nowMs values sort lexicographically in timestamp order, which is what
// lets the MVCC layer tie-break same-timestamp writes by TxID (spec §4.3).
func GenerateTxID(nowMs int64, src io.Reader) (TxID, error) {
	if src == nil {
		src = rand.Reader
	}
	var entropy [10]byte
	if _, err := io.ReadFull(src, entropy[:]); err != nil {
		return "", invalidTx("failed to read entropy: %v", err)
	}

	var raw [16]byte
	for i := 5; i >= 0; i-- {
		raw[i] = byte(nowMs & 0xff)
		nowMs >>= 8
	}
	copy(raw[6:], entropy[:])

	return TxID(encodeCrockford(raw)), nil
}

// encodeCrockford encodes a 128-bit value (big-endian byte order) as 26
// Crockford base32 characters, left-padding with '0' as needed. This is
// the standard ULID text encoding, computed via big.Int division rather
// than hand-derived bit offsets so the mapping is easy to verify.
func encodeCrockford(raw [16]byte) string {
	n := new(big.Int).SetBytes(raw[:])
	base := big.NewInt(32)
	mod := new(big.Int)

	var digits [26]byte
	for i := 25; i >= 0; i-- {
		n.DivMod(n, base, mod)
		digits[i] = crockford[mod.Int64()]
	}
	return string(digits[:])
}
