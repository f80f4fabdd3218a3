// Package vector implements the Mnemosyne version vector (C3): the
// per-producer highest contiguously observed sequence number, used both as
// the committed dag-sync checkpoint and for restart replay.
package vector

import (
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrVVDecodeFailed is fatal at startup (C7): the persisted checkpoint
// could not be decoded.
var ErrVVDecodeFailed = errors.New("vector: decode failed")

// Vector maps a producer prefix to its highest contiguously committed
// sequence number. The zero value is an empty vector.
type Vector struct {
	m map[string]uint64
}

// New returns an empty version vector.
func New() *Vector {
	return &Vector{m: make(map[string]uint64)}
}

// Get returns the highest sequence recorded for producer, or 0 if absent.
func (v *Vector) Get(producer string) uint64 {
	if v.m == nil {
		return 0
	}
	return v.m[producer]
}

// Set stores v as the only sequence recorded for producer (no history is
// kept).
func (v *Vector) Set(producer string, seq uint64) {
	if v.m == nil {
		v.m = make(map[string]uint64)
	}
	v.m[producer] = seq
}

// Producers returns every tracked producer, in a deterministic
// (lexicographic) order.
func (v *Vector) Producers() []string {
	out := make([]string, 0, len(v.m))
	for p := range v.m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked producers.
func (v *Vector) Len() int {
	return len(v.m)
}

// entry is the RLP-encodable (producer, seq) pair used by Encode/Decode.
type entry struct {
	Producer string
	Seq      uint64
}

// Encode renders the vector as a meta-data blob (an RLP list of
// producer/seq pairs in deterministic order), matching the
// rlp.EncodeToBytes idiom the teacher uses for every persisted struct.
func (v *Vector) Encode() ([]byte, error) {
	producers := v.Producers()
	entries := make([]entry, 0, len(producers))
	for _, p := range producers {
		entries = append(entries, entry{Producer: p, Seq: v.m[p]})
	}
	return rlp.EncodeToBytes(entries)
}

// Decode reconstructs a vector from its encoded blob.
func Decode(data []byte) (*Vector, error) {
	var entries []entry
	if err := rlp.DecodeBytes(data, &entries); err != nil {
		return nil, errors.Join(ErrVVDecodeFailed, err)
	}
	v := New()
	for _, e := range entries {
		v.Set(e.Producer, e.Seq)
	}
	return v, nil
}
