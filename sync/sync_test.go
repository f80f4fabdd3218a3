package sync

import (
	"context"
	"testing"
	"time"

	"github.com/mnemosyne/mnemosyne/record"
	"github.com/mnemosyne/mnemosyne/store"
	"github.com/mnemosyne/mnemosyne/transport/memtransport"
	"github.com/mnemosyne/mnemosyne/validator/fakevalidator"
)

func newAdapter(t *testing.T, tr *memtransport.Transport) (*Adapter, *store.Backend) {
	t.Helper()
	backend := store.OpenMemory()
	t.Cleanup(func() { _ = backend.Close() })
	a := New(backend, tr, fakevalidator.AcceptAll{}, "/hint", 1, 1, time.Second, time.Millisecond, 2*time.Millisecond)
	return a, backend
}

func TestPublishStoresAndSealsRecord(t *testing.T) {
	net := memtransport.NewNetwork()
	a, backend := newAdapter(t, net.NewTransport())

	r := record.New([]record.FullName{record.GenesisFullName("/a"), record.GenesisFullName("/b")}, nil)
	seq, err := a.Publish(context.Background(), r, "/a", time.Minute, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if !backend.HasRecord(r.FullName()) {
		t.Fatalf("published record not found in backend")
	}
}

func TestHintedFetchReturnsPublishedRecord(t *testing.T) {
	net := memtransport.NewNetwork()
	producerTr := net.NewTransport()
	a, _ := newAdapter(t, producerTr)

	r := record.New([]record.FullName{record.GenesisFullName("/a"), record.GenesisFullName("/b")}, nil)
	seq, err := a.Publish(context.Background(), r, "/a", time.Minute, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// A second transport handle, representing a different peer, fetches with
	// the hint prefix the adapter registered on the shared network.
	// memtransport answers from the network's own copy of published data
	// when it has one, so the adapter's hint handler is not consulted here.
	peerTr := net.NewTransport()
	data, digest, err := peerTr.Fetch(context.Background(), "/a", seq, "/hint", time.Second)
	if err != nil {
		t.Fatalf("hinted Fetch: %v", err)
	}
	if digest != r.FullName().Digest {
		t.Fatalf("digest mismatch")
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty payload")
	}
}

func TestFetchReportsTimeoutWhenNothingServes(t *testing.T) {
	net := memtransport.NewNetwork()
	a, _ := newAdapter(t, net.NewTransport())

	var timedOut bool
	a.Fetch(context.Background(), "/nobody", 1, a.DirectRetries(), fakevalidator.AcceptAll{},
		func(r *record.Record, producer string, seq uint64) { t.Fatalf("unexpected data") },
		func(producer string, seq uint64, err error) { t.Fatalf("unexpected validation error") },
		func(producer string, seq uint64) { timedOut = true },
	)
	if !timedOut {
		t.Fatalf("expected onTimeout to fire")
	}
}

func TestJitteredBackoffWithinConfiguredRange(t *testing.T) {
	net := memtransport.NewNetwork()
	a, _ := newAdapter(t, net.NewTransport())
	for i := 0; i < 20; i++ {
		d := a.jitteredBackoff()
		if d < time.Millisecond || d >= 2*time.Millisecond {
			t.Fatalf("jitteredBackoff() = %v, want within [1ms, 2ms)", d)
		}
	}
}

func TestShouldCacheIsFalse(t *testing.T) {
	net := memtransport.NewNetwork()
	a, _ := newAdapter(t, net.NewTransport())
	if a.ShouldCache() {
		t.Fatalf("ShouldCache() = true, want false")
	}
}
