package wire

import (
	"bytes"
	"fmt"
	"io"

	uuid "github.com/satori/go.uuid"
)

func errWrongIDLength(n int) error {
	return fmt.Errorf("wire: identifier must be 16 bytes, got %d", n)
}

// ClientId and ServerId are opaque 128-bit identifiers. They are
// plain byte arrays so they are comparable and usable as map keys without
// any helper methods.
type ClientId [16]byte
type ServerId [16]byte

// NewClientId mints a fresh random identifier. Collisions are left to the
// caller to detect and retry on.
func NewClientId() ClientId {
	return ClientId(uuid.NewV4())
}

// NewServerId mints a fresh random server identifier.
func NewServerId() ServerId {
	return ServerId(uuid.NewV4())
}

// Nonce converts a ClientId into the 128-bit integer used as the
// proof-of-work nonce: the 16 identifier bytes read as
// a little-endian integer, the same interpretation the codec gives every
// other multi-byte integer on the wire.
func (c ClientId) Nonce() U128 {
	return U128FromBytesLE(c[:])
}

func (c ClientId) String() string { return uuid.UUID(c).String() }
func (s ServerId) String() string { return uuid.UUID(s).String() }

// CompareServerId orders two server ids lexicographically by their raw
// bytes; used to break route-length ties deterministically.
func CompareServerId(a, b ServerId) int {
	return bytes.Compare(a[:], b[:])
}

func EncodeClientId(w io.Writer, id ClientId) error {
	return EncodeBytes(w, id[:])
}

func DecodeClientId(r io.Reader) (ClientId, error) {
	b, err := DecodeBytes(r)
	if err != nil {
		return ClientId{}, err
	}
	return bytesToID[ClientId](b)
}

func EncodeServerId(w io.Writer, id ServerId) error {
	return EncodeBytes(w, id[:])
}

func DecodeServerId(r io.Reader) (ServerId, error) {
	b, err := DecodeBytes(r)
	if err != nil {
		return ServerId{}, err
	}
	return bytesToID[ServerId](b)
}

func bytesToID[T ClientId | ServerId](b []byte) (T, error) {
	var id T
	if len(b) != 16 {
		return id, errWrongIDLength(len(b))
	}
	copy(id[:], b)
	return id, nil
}
