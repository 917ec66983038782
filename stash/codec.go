package stash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec serializes rows of type T.
//
// The encoding must be order-preserving: for any rows a, b, the result of
// bytes.Compare(Encode(a), Encode(b)) must match the intended logical order
// of a and b. SortDedup orders and deduplicates on the encoded form alone.
type Codec[T any] interface {
	Encode(row T) []byte
	Decode(b []byte) (T, error)
}

// ErrBadRow is returned when a serialized row cannot be decoded.
var ErrBadRow = errors.New("stash: malformed row")

// sep separates variable-width string fields. String keys must not contain
// the NUL byte; a key that does would compare differently in encoded and
// logical form.
const sep = 0x00

// Pair is a two-column string row, ordered by (A, B).
type Pair struct {
	A string
	B string
}

// KeyID is a (string key, dense id) row, ordered by (Key, ID).
type KeyID struct {
	Key string
	ID  uint32
}

// IDPair is a two-column integer row, ordered by (A, B).
type IDPair struct {
	A uint32
	B uint32
}

// StringCodec encodes a single string column.
type StringCodec struct{}

// Encode implements Codec.
func (StringCodec) Encode(row string) []byte { return []byte(row) }

// Decode implements Codec.
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// PairCodec encodes Pair rows as A, a NUL separator, then B.
//
// The separator sorts below every other byte, so encoded order matches
// (A, B) order for NUL-free keys.
type PairCodec struct{}

// Encode implements Codec.
func (PairCodec) Encode(row Pair) []byte {
	b := make([]byte, 0, len(row.A)+len(row.B)+1)
	b = append(b, row.A...)
	b = append(b, sep)
	b = append(b, row.B...)
	return b
}

// Decode implements Codec.
func (PairCodec) Decode(b []byte) (Pair, error) {
	i := bytes.IndexByte(b, sep)
	if i < 0 {
		return Pair{}, fmt.Errorf("%w: missing separator", ErrBadRow)
	}
	return Pair{A: string(b[:i]), B: string(b[i+1:])}, nil
}

// KeyIDCodec encodes KeyID rows as Key, a NUL separator, then the id as
// 4 big-endian bytes. Big-endian fixed width keeps numeric and byte order
// identical.
type KeyIDCodec struct{}

// Encode implements Codec.
func (KeyIDCodec) Encode(row KeyID) []byte {
	b := make([]byte, 0, len(row.Key)+5)
	b = append(b, row.Key...)
	b = append(b, sep)
	b = binary.BigEndian.AppendUint32(b, row.ID)
	return b
}

// Decode implements Codec.
func (KeyIDCodec) Decode(b []byte) (KeyID, error) {
	if len(b) < 5 {
		return KeyID{}, fmt.Errorf("%w: too short for key/id", ErrBadRow)
	}
	i := len(b) - 5
	if b[i] != sep {
		return KeyID{}, fmt.Errorf("%w: missing separator", ErrBadRow)
	}
	return KeyID{Key: string(b[:i]), ID: binary.BigEndian.Uint32(b[i+1:])}, nil
}

// IDPairCodec encodes IDPair rows as 8 big-endian bytes.
type IDPairCodec struct{}

// Encode implements Codec.
func (IDPairCodec) Encode(row IDPair) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:], row.A)
	binary.BigEndian.PutUint32(b[4:], row.B)
	return b
}

// Decode implements Codec.
func (IDPairCodec) Decode(b []byte) (IDPair, error) {
	if len(b) != 8 {
		return IDPair{}, fmt.Errorf("%w: want 8 bytes, got %d", ErrBadRow, len(b))
	}
	return IDPair{A: binary.BigEndian.Uint32(b[0:]), B: binary.BigEndian.Uint32(b[4:])}, nil
}
