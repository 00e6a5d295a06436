package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Leading-byte tags for the C1 variable-length integer codec.
const (
	tagU16  = 251
	tagU32  = 252
	tagU64  = 253
	tagU128 = 254
)

// EncodeVarint writes m in the shortest tier that represents it exactly
// (the canonical form required of every encoder).
func EncodeVarint(w io.Writer, m U128) error {
	switch {
	case m.fitsLiteral():
		_, err := w.Write([]byte{byte(m.Lo)})
		return err
	case m.fitsUint16():
		var buf [3]byte
		buf[0] = tagU16
		binary.LittleEndian.PutUint16(buf[1:], uint16(m.Lo))
		_, err := w.Write(buf[:])
		return err
	case m.fitsUint32():
		var buf [5]byte
		buf[0] = tagU32
		binary.LittleEndian.PutUint32(buf[1:], uint32(m.Lo))
		_, err := w.Write(buf[:])
		return err
	case m.fitsUint64():
		var buf [9]byte
		buf[0] = tagU64
		binary.LittleEndian.PutUint64(buf[1:], m.Lo)
		_, err := w.Write(buf[:])
		return err
	default:
		var buf [17]byte
		buf[0] = tagU128
		b := m.BytesLE()
		copy(buf[1:], b[:])
		_, err := w.Write(buf[:])
		return err
	}
}

// DecodeVarint reads one C1 value. Non-canonical encodings (e.g. tag 254
// carrying a value that would fit a narrower tier) are accepted; only an
// unrecognized leading byte (255) is a decode error.
func DecodeVarint(r io.Reader) (U128, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return U128{}, err
	}
	switch {
	case tag[0] <= 250:
		return U128FromUint64(uint64(tag[0])), nil
	case tag[0] == tagU16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return U128{}, err
		}
		return U128FromUint64(uint64(binary.LittleEndian.Uint16(buf[:]))), nil
	case tag[0] == tagU32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return U128{}, err
		}
		return U128FromUint64(uint64(binary.LittleEndian.Uint32(buf[:]))), nil
	case tag[0] == tagU64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return U128{}, err
		}
		return U128FromUint64(binary.LittleEndian.Uint64(buf[:])), nil
	case tag[0] == tagU128:
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return U128{}, err
		}
		return U128FromBytesLE(buf[:]), nil
	default:
		return U128{}, ErrUnknownLeadingByte
	}
}

// EncodeUint encodes a plain uint64 via the C1 codec, a convenience for
// the many fields (slice/map lengths, byte-array lengths) that are sized
// this way but never need the full 128 bits.
func EncodeUint(w io.Writer, v uint64) error {
	return EncodeVarint(w, U128FromUint64(v))
}

// DecodeUint reads a C1 value and requires it fit in a uint64 — used for
// lengths, which are bounded well below 2^64 in practice (see
// maxDecodeLen in primitives.go).
func DecodeUint(r io.Reader) (uint64, error) {
	v, err := DecodeVarint(r)
	if err != nil {
		return 0, err
	}
	if v.Hi != 0 {
		return 0, fmt.Errorf("wire: length %s overflows uint64", v.String())
	}
	return v.Lo, nil
}
