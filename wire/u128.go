// Package wire implements the on-the-wire binary framing shared by every
// chatfed endpoint: variable-length integers, identifiers, strings,
// ordered sequences, mappings, and the tagged-union message taxonomy they
// compose into. It has no notion of server state or sockets — it only
// turns bytes into Go values and back, so it can be driven directly from
// tests and reused unchanged by client and server alike.
package wire

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// U128 is an unsigned 128-bit integer, split into a high and low 64-bit
// half (value = Hi<<64 | Lo). It backs seqid, the proof-of-work nonce
// derived from a ClientId, and the C1 varint codec's widest tier.
type U128 struct {
	Hi uint64
	Lo uint64
}

// U128FromUint64 widens a uint64 into a U128.
func U128FromUint64(v uint64) U128 {
	return U128{Hi: 0, Lo: v}
}

// U128FromBytesLE interprets the first 16 bytes of b as a little-endian
// 128-bit unsigned integer.
func U128FromBytesLE(b []byte) U128 {
	return U128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// BytesLE renders u as 16 little-endian bytes.
func (u U128) BytesLE() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], u.Lo)
	binary.LittleEndian.PutUint64(out[8:16], u.Hi)
	return out
}

// Cmp returns -1, 0, or 1 as u is less than, equal to, or greater than v.
func (u U128) Cmp(v U128) int {
	if u.Hi != v.Hi {
		if u.Hi < v.Hi {
			return -1
		}
		return 1
	}
	switch {
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	default:
		return 0
	}
}

func (u U128) fitsLiteral() bool { return u.Hi == 0 && u.Lo <= 250 }
func (u U128) fitsUint16() bool  { return u.Hi == 0 && u.Lo <= 0xFFFF }
func (u U128) fitsUint32() bool  { return u.Hi == 0 && u.Lo <= 0xFFFFFFFF }
func (u U128) fitsUint64() bool  { return u.Hi == 0 }

// Big returns u as a *big.Int, for logging and error messages only.
func (u U128) Big() *big.Int {
	v := new(big.Int).SetUint64(u.Hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(u.Lo))
	return v
}

func (u U128) String() string {
	return u.Big().String()
}

// ErrUnknownLeadingByte is returned when a C1 varint's leading byte is
// 255, which no tier defines.
var ErrUnknownLeadingByte = fmt.Errorf("wire: unknown varint leading byte 255")
