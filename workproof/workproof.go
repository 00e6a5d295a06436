// Package workproof implements the hash-based proof-of-work admission
// check shared by every chatfed client and server: a
// fixed hash function applied to a nonce derived from the client id and
// a witness the client searches for, with admission gated on a minimum
// count of leading zero bits in the digest.
//
// The hash choice (blake2b-256) and the byte layout fed to it (16-byte
// little-endian nonce, then 8-byte little-endian witness) are the single
// point client and server code must agree on verbatim; both live here so
// there is exactly one implementation to keep in sync.
package workproof

import (
	"math/bits"

	"golang.org/x/crypto/blake2b"

	"chatfed/wire"
)

// input lays out the 24 bytes hashed for a given (nonce, workproof) pair.
func input(nonce wire.U128, proof uint64) [24]byte {
	var buf [24]byte
	n := nonce.BytesLE()
	copy(buf[0:16], n[:])
	buf[16] = byte(proof)
	buf[17] = byte(proof >> 8)
	buf[18] = byte(proof >> 16)
	buf[19] = byte(proof >> 24)
	buf[20] = byte(proof >> 32)
	buf[21] = byte(proof >> 40)
	buf[22] = byte(proof >> 48)
	buf[23] = byte(proof >> 56)
	return buf
}

// Verify reports whether proof is an admissible witness for nonce at the
// given difficulty: the blake2b-256 digest of (nonce, proof)
// must have at least strength leading zero bits.
func Verify(nonce wire.U128, proof uint64, strength uint) bool {
	in := input(nonce, proof)
	digest := blake2b.Sum256(in[:])
	return leadingZeroBits(digest[:]) >= strength
}

// Generate performs the bounded client-side search for the smallest
// witness satisfying strength, trying witnesses in ascending order
// starting at 0 so the first hit is the smallest. It gives up after
// bound attempts, returning ok=false.
func Generate(nonce wire.U128, strength uint, bound uint64) (proof uint64, ok bool) {
	for p := uint64(0); p < bound; p++ {
		if Verify(nonce, p, strength) {
			return p, true
		}
	}
	return 0, false
}

func leadingZeroBits(digest []byte) uint {
	var total uint
	for _, b := range digest {
		if b == 0 {
			total += 8
			continue
		}
		total += uint(bits.LeadingZeros8(b))
		break
	}
	return total
}
