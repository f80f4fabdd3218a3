package refcheck

import (
	"testing"

	"github.com/mnemosyne/mnemosyne/record"
)

type fakeResident struct {
	set map[record.FullName]bool
}

func newFakeResident() *fakeResident { return &fakeResident{set: map[record.FullName]bool{}} }

func (f *fakeResident) HasRecord(full record.FullName) bool { return f.set[full] }

func (f *fakeResident) commit(full record.FullName) { f.set[full] = true }

func sealed(producer string, seq uint64, pointers ...record.FullName) (*record.Record, record.FullName) {
	r := record.New(pointers, nil)
	full := record.FullName{Name: record.Name{Producer: producer, Seq: seq}}
	full.Digest[0] = byte(seq) + 1
	_ = r.Seal(full)
	return r, full
}

func TestReadyWhenAllPointersResident(t *testing.T) {
	resident := newFakeResident()
	var ready []record.FullName
	c := New(resident, func(r *record.Record, producer string, seq uint64) {
		resident.commit(r.FullName())
		ready = append(ready, r.FullName())
	})

	r, full := sealed("/a", 1, record.GenesisFullName("/a"), record.GenesisFullName("/b"))
	c.AddRecord(r, "/a", 1)

	if len(ready) != 1 || ready[0] != full {
		t.Fatalf("ready = %v, want [%v]", ready, full)
	}
	if c.Waiting() != 0 {
		t.Fatalf("Waiting() = %d, want 0", c.Waiting())
	}
}

func TestBlockedUntilPointerResolves(t *testing.T) {
	resident := newFakeResident()
	var order []record.FullName
	c := New(resident, func(r *record.Record, producer string, seq uint64) {
		resident.commit(r.FullName())
		order = append(order, r.FullName())
	})

	a1, a1Full := sealed("/a", 1, record.GenesisFullName("/a"), record.GenesisFullName("/x"))
	b1, _ := sealed("/b", 1, a1Full, record.GenesisFullName("/y"))

	// B1 arrives first: A1 is not resident yet, so B1 is held.
	c.AddRecord(b1, "/b", 1)
	if c.Waiting() != 1 {
		t.Fatalf("Waiting() = %d, want 1", c.Waiting())
	}
	if len(order) != 0 {
		t.Fatalf("order = %v, want empty before A1 resolves", order)
	}

	// A1 arrives: both commit, A1 before B1.
	c.AddRecord(a1, "/a", 1)
	if c.Waiting() != 0 {
		t.Fatalf("Waiting() = %d, want 0 after A1 resolves", c.Waiting())
	}
	if len(order) != 2 || order[0] != a1Full || order[1] != b1.FullName() {
		t.Fatalf("order = %v, want [A1, B1]", order)
	}
}

func TestDropsBadGenesisPointer(t *testing.T) {
	resident := newFakeResident()
	var ready int
	c := New(resident, func(r *record.Record, producer string, seq uint64) { ready++ })

	forged := record.FullName{Name: record.Name{Producer: "/a", Seq: 0}}
	forged.Digest[0] = 0xFF // not the deterministic genesis digest for /a
	r, _ := sealed("/b", 1, forged, record.GenesisFullName("/y"))

	c.AddRecord(r, "/b", 1)
	if ready != 0 {
		t.Fatalf("ready = %d, want 0 (record should be dropped)", ready)
	}
	if c.Waiting() != 0 {
		t.Fatalf("Waiting() = %d, want 0 (dropped, not retried)", c.Waiting())
	}
}

func TestLongDependencyChainIterative(t *testing.T) {
	resident := newFakeResident()
	var order []record.FullName
	c := New(resident, func(r *record.Record, producer string, seq uint64) {
		resident.commit(r.FullName())
		order = append(order, r.FullName())
	})

	const n = 200
	var recs []*record.Record
	var fulls []record.FullName
	parent := record.GenesisFullName("/a")
	for i := uint64(1); i <= n; i++ {
		r, full := sealed("/a", i, parent, record.GenesisFullName("/y"))
		recs = append(recs, r)
		fulls = append(fulls, full)
		parent = full
	}
	// Feed in reverse order so every record blocks on the next one down
	// the chain until the genesis-rooted record arrives last.
	for i := n - 1; i >= 0; i-- {
		c.AddRecord(recs[i], "/a", uint64(i+1))
	}
	if len(order) != n {
		t.Fatalf("released %d records, want %d", len(order), n)
	}
	for i := range order {
		if order[i] != fulls[i] {
			t.Fatalf("release order mismatch at %d: got %v, want %v", i, order[i], fulls[i])
		}
	}
}
