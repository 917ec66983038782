package minrec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/minrec/stash"
)

// Row codecs for the restore phases. Like the codecs in package stash,
// encodings are order-preserving on the serialized bytes. Scores are
// non-negative float32s, whose IEEE-754 bit patterns sort like their
// values; storing the complement yields descending score order.

// scoredRef is a drained accumulator entry keyed for candidate-column
// restoration: sorted by the candidate's item id.
type scoredRef struct {
	Ref   uint32 // candidate item id, the restore column
	Item  uint32
	Score float32
}

type scoredRefCodec struct{}

func (scoredRefCodec) Encode(row scoredRef) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:], row.Ref)
	binary.BigEndian.PutUint32(b[4:], row.Item)
	binary.BigEndian.PutUint32(b[8:], math.Float32bits(row.Score))
	return b
}

func (scoredRefCodec) Decode(b []byte) (scoredRef, error) {
	if len(b) != 12 {
		return scoredRef{}, fmt.Errorf("%w: want 12 bytes, got %d", stash.ErrBadRow, len(b))
	}
	return scoredRef{
		Ref:   binary.BigEndian.Uint32(b[0:]),
		Item:  binary.BigEndian.Uint32(b[4:]),
		Score: math.Float32frombits(binary.BigEndian.Uint32(b[8:])),
	}, nil
}

// scoredKey is a half-restored row keyed for item-column restoration:
// sorted by (item id, score descending, candidate key).
type scoredKey struct {
	Item      uint32
	Score     float32
	Candidate string
}

type scoredKeyCodec struct{}

func (scoredKeyCodec) Encode(row scoredKey) []byte {
	b := make([]byte, 0, 8+len(row.Candidate))
	b = binary.BigEndian.AppendUint32(b, row.Item)
	b = binary.BigEndian.AppendUint32(b, ^math.Float32bits(row.Score))
	b = append(b, row.Candidate...)
	return b
}

func (scoredKeyCodec) Decode(b []byte) (scoredKey, error) {
	if len(b) < 8 {
		return scoredKey{}, fmt.Errorf("%w: too short for scored key", stash.ErrBadRow)
	}
	return scoredKey{
		Item:      binary.BigEndian.Uint32(b[0:]),
		Score:     math.Float32frombits(^binary.BigEndian.Uint32(b[4:])),
		Candidate: string(b[8:]),
	}, nil
}

// recRow is a fully restored recommendation edge. The final stash is
// written in output order (item key ascending, score descending), so this
// codec's ordering is never exercised by a sort, but it preserves it all
// the same.
type recRow struct {
	Item      string
	Score     float32
	Candidate string
}

type recRowCodec struct{}

func (recRowCodec) Encode(row recRow) []byte {
	b := make([]byte, 0, len(row.Item)+len(row.Candidate)+5)
	b = append(b, row.Item...)
	b = append(b, 0x00)
	b = binary.BigEndian.AppendUint32(b, ^math.Float32bits(row.Score))
	b = append(b, row.Candidate...)
	return b
}

func (recRowCodec) Decode(b []byte) (recRow, error) {
	i := bytes.IndexByte(b, 0x00)
	if i < 0 || len(b) < i+5 {
		return recRow{}, fmt.Errorf("%w: malformed recommendation row", stash.ErrBadRow)
	}
	return recRow{
		Item:      string(b[:i]),
		Score:     math.Float32frombits(^binary.BigEndian.Uint32(b[i+1:])),
		Candidate: string(b[i+5:]),
	}, nil
}
