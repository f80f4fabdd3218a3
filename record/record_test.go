package record

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ptrs := []FullName{
		GenesisFullName("/a"),
		GenesisFullName("/b"),
	}
	body := []byte("hello event")

	data, err := Encode(ptrs, body, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotPtrs, gotBody, hasBody, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !hasBody || !bytes.Equal(gotBody, body) {
		t.Fatalf("body mismatch: got %q hasBody=%v, want %q", gotBody, hasBody, body)
	}
	if len(gotPtrs) != len(ptrs) {
		t.Fatalf("pointer count mismatch: got %d, want %d", len(gotPtrs), len(ptrs))
	}
	for i := range ptrs {
		if gotPtrs[i] != ptrs[i] {
			t.Fatalf("pointer %d mismatch: got %v, want %v", i, gotPtrs[i], ptrs[i])
		}
	}
}

func TestEncodeDecodeNoBody(t *testing.T) {
	ptrs := []FullName{GenesisFullName("/a"), GenesisFullName("/b")}
	data, err := Encode(ptrs, nil, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, _, hasBody, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if hasBody {
		t.Fatalf("expected no body")
	}
}

func TestDecodeRejectsBadEncoding(t *testing.T) {
	cases := map[string][]byte{
		"empty":                {},
		"wrong first tag":      {bodyTag, 0x00},
		"truncated length":     {headerTag},
		"truncated value":      {headerTag, 0x05, 0x01},
		"non-pointer in header": append([]byte{headerTag, 0x02}, 0xFF, 0x00),
	}
	for name, data := range cases {
		if _, _, _, err := Decode(data); !errors.Is(err, ErrBadEncoding) {
			t.Errorf("%s: Decode error = %v, want ErrBadEncoding", name, err)
		}
	}
}

func TestCheckPointerCount(t *testing.T) {
	ptrs := []FullName{GenesisFullName("/a"), GenesisFullName("/b")}
	if err := CheckPointerCount(ptrs, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckPointerCount(ptrs, 3); !errors.Is(err, ErrInsufficientPointers) {
		t.Fatalf("got %v, want ErrInsufficientPointers", err)
	}
	dup := []FullName{GenesisFullName("/a"), GenesisFullName("/a")}
	if err := CheckPointerCount(dup, 2); !errors.Is(err, ErrDuplicateProducer) {
		t.Fatalf("got %v, want ErrDuplicateProducer", err)
	}
}

func TestRecordSealImmutable(t *testing.T) {
	r := New([]FullName{GenesisFullName("/a"), GenesisFullName("/b")}, []byte("x"))
	full := FullName{Name: Name{Producer: "/c", Seq: 1}}
	if err := r.Seal(full); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !r.Sealed() {
		t.Fatalf("expected sealed record")
	}
	if err := r.Seal(full); !errors.Is(err, ErrAlreadySealed) {
		t.Fatalf("second Seal error = %v, want ErrAlreadySealed", err)
	}
}
