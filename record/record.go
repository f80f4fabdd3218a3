package record

// Record is an immutable preceding-pointer set plus an optional event
// payload. A Record is built unsealed (no full name yet); Seal fixes its
// full name once the transport has assigned a content digest, after which
// any further attempt to change it fails.
type Record struct {
	pointers []FullName
	body     []byte
	hasBody  bool
	full     FullName
}

// New constructs an unsealed record from its pointers and optional body.
// Pass a nil body for a record with no embedded event.
func New(pointers []FullName, body []byte) *Record {
	r := &Record{pointers: append([]FullName(nil), pointers...)}
	if body != nil {
		r.body = append([]byte(nil), body...)
		r.hasBody = true
	}
	return r
}

// Pointers returns a copy of the record's preceding pointers.
func (r *Record) Pointers() []FullName {
	return append([]FullName(nil), r.pointers...)
}

// Body returns the embedded event payload, if any.
func (r *Record) Body() ([]byte, bool) {
	if !r.hasBody {
		return nil, false
	}
	return append([]byte(nil), r.body...), true
}

// Sealed reports whether the record's full name has been fixed.
func (r *Record) Sealed() bool {
	return !r.full.IsZero()
}

// FullName returns the record's full name. It is the zero value until Seal
// is called.
func (r *Record) FullName() FullName {
	return r.full
}

// Seal fixes the record's full name. It fails if the record is already
// sealed, since a built record is immutable.
func (r *Record) Seal(full FullName) error {
	if r.Sealed() {
		return ErrAlreadySealed
	}
	r.full = full
	return nil
}

// Encode renders the record's content (header + optional body) as wire
// bytes, independent of whether it has been sealed.
func (r *Record) Encode() ([]byte, error) {
	return Encode(r.pointers, r.body, r.hasBody)
}

// Encode renders pointers and an optional body as the wire content bytes:
// content = header{pointer*} body{payload?}.
func Encode(pointers []FullName, body []byte, hasBody bool) ([]byte, error) {
	var headerVal []byte
	for _, p := range pointers {
		headerVal = appendTLV(headerVal, pointerTag, encodePointer(p))
	}
	buf := appendTLV(nil, headerTag, headerVal)
	if hasBody {
		buf = appendTLV(buf, bodyTag, body)
	}
	return buf, nil
}

// encodeEmpty returns the canonical encoding of a record with no pointers
// and no body, used as part of the genesis full-name preimage.
func encodeEmpty() []byte {
	buf, _ := Encode(nil, nil, false)
	return buf
}

// Decode parses wire content bytes into pointers and an optional body.
func Decode(data []byte) (pointers []FullName, body []byte, hasBody bool, err error) {
	header, rest, err := readTLV(data)
	if err != nil {
		return nil, nil, false, err
	}
	if header.tag != headerTag {
		return nil, nil, false, ErrBadEncoding
	}
	pointers, err = decodeHeader(header.value)
	if err != nil {
		return nil, nil, false, err
	}
	if len(rest) == 0 {
		return pointers, nil, false, nil
	}
	bodyElem, rest, err := readTLV(rest)
	if err != nil {
		return nil, nil, false, err
	}
	if bodyElem.tag != bodyTag || len(rest) != 0 {
		return nil, nil, false, ErrBadEncoding
	}
	if len(bodyElem.value) == 0 {
		return nil, nil, false, ErrBadEncoding
	}
	return pointers, append([]byte(nil), bodyElem.value...), true, nil
}

func decodeHeader(value []byte) ([]FullName, error) {
	var pointers []FullName
	for len(value) > 0 {
		var elem tlv
		var err error
		elem, value, err = readTLV(value)
		if err != nil {
			return nil, err
		}
		if elem.tag != pointerTag {
			return nil, ErrBadEncoding
		}
		p, err := decodePointer(elem.value)
		if err != nil {
			return nil, err
		}
		pointers = append(pointers, p)
	}
	return pointers, nil
}

// CheckPointerCount validates a decoded record's pointers against P =
// config.preceding_record_num: fewer than P pointers is
// ErrInsufficientPointers; two pointers from the same producer is
// ErrDuplicateProducer.
func CheckPointerCount(pointers []FullName, p int) error {
	if len(pointers) < p {
		return ErrInsufficientPointers
	}
	seen := make(map[string]struct{}, len(pointers))
	for _, ptr := range pointers {
		if _, ok := seen[ptr.Producer]; ok {
			return ErrDuplicateProducer
		}
		seen[ptr.Producer] = struct{}{}
	}
	return nil
}

// Decoded reconstructs a sealed Record from its wire bytes and full name,
// used by the sync adapter when a fetched packet is accepted.
func Decoded(full FullName, data []byte) (*Record, error) {
	pointers, body, hasBody, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r := New(pointers, nil)
	if hasBody {
		r.body = body
		r.hasBody = true
	}
	if err := r.Seal(full); err != nil {
		return nil, err
	}
	return r, nil
}
