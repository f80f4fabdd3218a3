package event

import (
	"context"
	"testing"
	"time"

	"github.com/mnemosyne/mnemosyne/daglogger"
	"github.com/mnemosyne/mnemosyne/record"
	"github.com/mnemosyne/mnemosyne/replication"
	"github.com/mnemosyne/mnemosyne/store"
	syncadapter "github.com/mnemosyne/mnemosyne/sync"
	"github.com/mnemosyne/mnemosyne/transport/memtransport"
	"github.com/mnemosyne/mnemosyne/validator/fakevalidator"
)

func newTestLogger(t *testing.T, net *memtransport.Network, self string) *daglogger.Logger {
	t.Helper()
	backend := store.OpenMemory()
	t.Cleanup(func() { _ = backend.Close() })
	tr := net.NewTransport()
	adapter := syncadapter.New(backend, tr, fakevalidator.AcceptAll{}, self+"/hint", 1, 1, time.Second, time.Millisecond, 2*time.Millisecond)
	l := daglogger.New(self, 2, 4, 1, backend, adapter, tr, fakevalidator.AcceptAll{}, replication.New(self, 0), nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return l
}

func sealedFrom(producer string, seq uint64, body []byte) *record.Record {
	r := record.New([]record.FullName{record.GenesisFullName("/x"), record.GenesisFullName("/y")}, body)
	full := record.FullName{Name: record.Name{Producer: producer, Seq: seq}}
	full.Digest[0] = byte(seq) + 1
	_ = r.Seal(full)
	return r
}

func TestBackoffZeroWhenProducerHasPendingSelfInsert(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 50*time.Millisecond, 100*time.Millisecond, 0)

	var delays []time.Duration
	iface.schedule = func(d time.Duration, fn func()) { delays = append(delays, d); fn() }

	iface.self.Insert("/a")
	iface.OnEventData("/a/EVENT/9", []byte("x"), "/a")

	if len(delays) != 1 || delays[0] != 0 {
		t.Fatalf("delays = %v, want [0]", delays)
	}
}

func TestRandomBackoffWithinConfiguredRange(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 50*time.Millisecond, 100*time.Millisecond, 0)

	var delay time.Duration
	iface.schedule = func(d time.Duration, fn func()) { delay = d; fn() }
	iface.OnEventData("/a/EVENT/1", []byte("x"), "/a")

	if delay < 50*time.Millisecond || delay >= 100*time.Millisecond {
		t.Fatalf("delay = %v, want within [50ms, 100ms)", delay)
	}
}

func TestOnRecordMarksEventSeenAndDedupsFutureDelivery(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)
	iface.schedule = func(d time.Duration, fn func()) { fn() }

	r := sealedFrom("/b", 1, []byte("payload"))
	iface.OnRecord(r)

	name := r.FullName().String()
	if !iface.seen.Contains(name) {
		t.Fatalf("OnRecord did not mark event as seen")
	}

	iface.OnEventData(name, []byte("payload"), "/b")
	if got := logger.Vector().Get("/a"); got != 0 {
		t.Fatalf("Vector().Get(/a) = %d, want 0 (deduped event must not be re-inserted)", got)
	}
}

func TestOnRecordClearsMatchingSelfInsertEntry(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)

	iface.self.Insert("/b")
	r := sealedFrom("/b", 1, []byte("payload"))
	iface.OnRecord(r)

	if iface.self.Contains("/b") {
		t.Fatalf("self-insert entry for /b should have been cleared by ReceivedOther")
	}
}

func TestOnRecordIgnoresRecordsWithNoBody(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)

	r := sealedFrom("/b", 1, nil)
	iface.OnRecord(r)

	if iface.seen.Len() != 0 {
		t.Fatalf("bodyless record should not be added to the seen set")
	}
}

func TestEventFilterRejectsNonMatchingProducer(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)
	iface.schedule = func(d time.Duration, fn func()) { fn() }
	if err := iface.SetFilter(`producer == "/allowed"`); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	iface.OnEventData("/a/EVENT/1", []byte("x"), "/a")
	if got := logger.Vector().Get("/a"); got != 0 {
		t.Fatalf("Vector().Get(/a) = %d, want 0 (filtered event must not be inserted)", got)
	}
}

func TestEventFilterAcceptsMatchingProducer(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)
	iface.schedule = func(d time.Duration, fn func()) { fn() }
	if err := iface.SetFilter(`producer == "/a"`); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	iface.OnEventData("/a/EVENT/1", []byte("x"), "/a")
	if got := logger.Vector().Get("/a"); got != 1 {
		t.Fatalf("Vector().Get(/a) = %d, want 1", got)
	}
}

func TestCreateRecordSucceedsForFreshEvent(t *testing.T) {
	net := memtransport.NewNetwork()
	logger := newTestLogger(t, net, "/a")
	iface := New(logger, fakevalidator.AcceptAll{}, time.Hour, 1000, 0, 0, 0)
	iface.schedule = func(d time.Duration, fn func()) { fn() }

	iface.OnEventData("/a/EVENT/1", []byte("hello"), "/a")
	if got := logger.Vector().Get("/a"); got != 1 {
		t.Fatalf("Vector().Get(/a) = %d, want 1", got)
	}
}
