// Package record implements the Mnemosyne record name, header and body
// encoding: the bit-exact wire format shared by every logger in the DAG.
package record

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// recordComponent is the fixed middle name component every record carries:
// <producer-prefix>/RECORD/<seq>.
const recordComponent = "RECORD"

// Name is a record name without its content digest: producer prefix and
// sequence number. Two names are equal iff they name the same record slot.
type Name struct {
	Producer string
	Seq      uint64
}

// String renders the name as "<producer>/RECORD/<seq>".
func (n Name) String() string {
	return n.Producer + "/" + recordComponent + "/" + strconv.FormatUint(n.Seq, 10)
}

// FullName extends a Name with the content digest the transport assigns at
// encode time. It is the primary key under which records are stored in C2.
type FullName struct {
	Name
	Digest [32]byte
}

// String renders the full name as "<producer>/RECORD/<seq>/<hex-digest>".
func (f FullName) String() string {
	return f.Name.String() + "/" + hex.EncodeToString(f.Digest[:])
}

// IsZero reports whether f is the zero value (never a valid full name).
func (f FullName) IsZero() bool {
	return f == FullName{}
}

// RecordName builds the (digest-less) name for a producer's sequence number.
func RecordName(producer string, seq uint64) Name {
	return Name{Producer: producer, Seq: seq}
}

// ProducerPrefix returns the producer component of a full name.
func ProducerPrefix(f FullName) string {
	return f.Producer
}

// SeqID returns the sequence number component of a full name.
func SeqID(f FullName) uint64 {
	return f.Seq
}

// IsGenesisRecord reports whether f names the (never-stored) sequence-0
// record of its producer.
func IsGenesisRecord(f FullName) bool {
	return f.Seq == 0
}

// GenesisFullName computes the deterministic full name of the genesis
// record for producer. It is a pure function of producer: every logger
// derives the same digest for the same producer, without ever exchanging
// or storing a genesis record.
//
// The digest is the Keccak256 hash of the genesis name's string form
// followed by the canonical (empty header, no body) content encoding, so
// distinct producers never collide and no logger can forge another
// producer's genesis name.
func GenesisFullName(producer string) FullName {
	name := RecordName(producer, 0)
	preimage := append([]byte(name.String()), encodeEmpty()...)
	digest := crypto.Keccak256(preimage)
	full := FullName{Name: name}
	copy(full.Digest[:], digest)
	return full
}

// IsRecordName reports whether s parses as a well-formed full record name:
// "<producer>/RECORD/<seq>/<64-hex-digest>".
func IsRecordName(s string) bool {
	_, err := ParseFullName(s)
	return err == nil
}

// ErrBadName is returned by ParseFullName when s is not a well-formed full
// record name.
var ErrBadName = errors.New("record: malformed full name")

// ParseFullName parses the string form of a full record name.
func ParseFullName(s string) (FullName, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 4 {
		return FullName{}, ErrBadName
	}
	digestHex := parts[len(parts)-1]
	seqStr := parts[len(parts)-2]
	recordTag := parts[len(parts)-3]
	producer := strings.Join(parts[:len(parts)-3], "/")
	if recordTag != recordComponent || producer == "" {
		return FullName{}, ErrBadName
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return FullName{}, fmt.Errorf("%w: bad sequence %q", ErrBadName, seqStr)
	}
	digestBytes, err := hex.DecodeString(digestHex)
	if err != nil || len(digestBytes) != 32 {
		return FullName{}, fmt.Errorf("%w: bad digest %q", ErrBadName, digestHex)
	}
	full := FullName{Name: Name{Producer: producer, Seq: seq}}
	copy(full.Digest[:], digestBytes)
	return full, nil
}
