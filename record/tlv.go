package record

import (
	"encoding/binary"
	"fmt"
)

// Wire framing is a minimal self-describing type-length-value scheme: a
// one-byte tag, an unsigned varint length, and that many value bytes.
// headerTag and bodyTag are the two reserved container tags spec.md §3/§6
// names; pointerTag frames each preceding pointer inside the header.
const (
	headerTag  = 129
	bodyTag    = 130
	pointerTag = 1
)

type tlv struct {
	tag   byte
	value []byte
}

func appendTLV(buf []byte, tag byte, value []byte) []byte {
	buf = append(buf, tag)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, value...)
	return buf
}

// readTLV reads one tag/length/value triple from the front of b, returning
// the remaining bytes.
func readTLV(b []byte) (tlv, []byte, error) {
	if len(b) < 1 {
		return tlv{}, nil, fmt.Errorf("%w: truncated tag", ErrBadEncoding)
	}
	tag := b[0]
	length, n := binary.Uvarint(b[1:])
	if n <= 0 {
		return tlv{}, nil, fmt.Errorf("%w: truncated length", ErrBadEncoding)
	}
	rest := b[1+n:]
	if uint64(len(rest)) < length {
		return tlv{}, nil, fmt.Errorf("%w: truncated value", ErrBadEncoding)
	}
	return tlv{tag: tag, value: rest[:length]}, rest[length:], nil
}

func encodePointer(f FullName) []byte {
	var buf []byte
	producer := []byte(f.Producer)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(producer)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, producer...)
	n = binary.PutUvarint(lenBuf[:], f.Seq)
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, f.Digest[:]...)
	return buf
}

func decodePointer(b []byte) (FullName, error) {
	plen, n := binary.Uvarint(b)
	if n <= 0 || uint64(n)+plen > uint64(len(b)) {
		return FullName{}, fmt.Errorf("%w: bad pointer producer length", ErrBadEncoding)
	}
	b = b[n:]
	producer := string(b[:plen])
	b = b[plen:]
	seq, n := binary.Uvarint(b)
	if n <= 0 {
		return FullName{}, fmt.Errorf("%w: bad pointer sequence", ErrBadEncoding)
	}
	b = b[n:]
	if len(b) != 32 {
		return FullName{}, fmt.Errorf("%w: bad pointer digest length", ErrBadEncoding)
	}
	full := FullName{Name: Name{Producer: producer, Seq: seq}}
	copy(full.Digest[:], b)
	return full, nil
}
