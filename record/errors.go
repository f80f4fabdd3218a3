package record

import "errors"

// ErrBadEncoding is returned by Decode when the wire bytes are not a
// well-formed record content: the header/body tag is missing or malformed,
// the header contains a non-name element, the body element is empty or is
// followed by trailing bytes, or a pointer is not a well-formed full name.
// The body's bytes themselves are not inspected: Decode does not check that
// they form a valid event data unit.
var ErrBadEncoding = errors.New("record: bad encoding")

// ErrInsufficientPointers is returned by CheckPointerCount when a record
// carries fewer than P preceding pointers.
var ErrInsufficientPointers = errors.New("record: insufficient preceding pointers")

// ErrDuplicateProducer is returned by CheckPointerCount when two pointers
// of the same record share a producer prefix.
var ErrDuplicateProducer = errors.New("record: duplicate producer among pointers")

// ErrAlreadySealed is returned by Record.Seal when the record's full name
// (and therefore its content digest) has already been fixed.
var ErrAlreadySealed = errors.New("record: already sealed")
