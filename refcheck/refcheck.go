// Package refcheck implements the Mnemosyne reference checker (C4): it
// holds records whose predecessors are not yet resident and releases them
// in dependency order once every pointer resolves.
package refcheck

import (
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mnemosyne/mnemosyne/internal/metrics"
	"github.com/mnemosyne/mnemosyne/record"
)

// residentCacheSize bounds the fast-path probe cache below. Pointers are
// re-checked constantly while a dependency chain drains, so a modest cache
// of recently-confirmed-resident names saves most of those repeat backend
// hits without needing to track eviction against the backend itself (a
// cache miss just falls through to Resident.HasRecord).
const residentCacheSize = 4096

// Resident reports whether a full name is already committed to the
// backend (C2). The checker never stores records itself; it only tracks
// who is waiting on whom.
type Resident interface {
	HasRecord(full record.FullName) bool
}

// ReadyFunc is invoked, in dependency order, once every pointer of a
// record has resolved. The callee is expected to commit the record (so
// later Resident.HasRecord calls observe it) before returning.
type ReadyFunc func(r *record.Record, producer string, seq uint64)

type waitEntry struct {
	record   *record.Record
	producer string
	seq      uint64
}

// Checker holds back records pending unresolved predecessors.
type Checker struct {
	resident     Resident
	residentHits *lru.Cache[record.FullName, struct{}]
	ready        ReadyFunc

	waiting map[record.FullName]waitEntry
	reverse map[record.FullName][]record.FullName
}

// New constructs a reference checker over resident (the residency oracle,
// typically the backend) invoking ready once a record's pointers all
// resolve.
func New(resident Resident, ready ReadyFunc) *Checker {
	return &Checker{
		resident:     resident,
		residentHits: lru.NewCache[record.FullName, struct{}](residentCacheSize),
		ready:        ready,
		waiting:      make(map[record.FullName]waitEntry),
		reverse:      make(map[record.FullName][]record.FullName),
	}
}

// Waiting reports how many records are currently held back, for tests and
// diagnostics.
func (c *Checker) Waiting() int {
	return len(c.waiting)
}

type resolution int

const (
	resolutionReady resolution = iota
	resolutionBlocked
	resolutionDropped
)

// AddRecord evaluates r's pointers against residency. If every pointer
// resolves, ready fires immediately and any records that were waiting on
// r are, in turn, re-evaluated (iteratively, not recursively, so buffered
// dependency chains of any depth cannot blow the stack). If a pointer is
// unresolved, r is buffered until that pointer is satisfied. If a genesis
// pointer doesn't match its producer's deterministic genesis name, r is
// dropped and not retried.
func (c *Checker) AddRecord(r *record.Record, producer string, seq uint64) {
	type queued struct {
		r        *record.Record
		producer string
		seq      uint64
	}
	queue := []queued{{r, producer, seq}}
	defer func() { metrics.RefcheckWaitingGauge.Update(int64(len(c.waiting))) }()

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		status := c.resolve(item.r, item.producer, item.seq)
		if status != resolutionReady {
			continue
		}

		c.ready(item.r, item.producer, item.seq)

		full := item.r.FullName()
		deps := c.reverse[full]
		delete(c.reverse, full)
		for _, depFull := range deps {
			entry, ok := c.waiting[depFull]
			if !ok {
				continue
			}
			delete(c.waiting, depFull)
			queue = append(queue, queued{entry.record, entry.producer, entry.seq})
		}
	}
}

// isResident probes the fast-path cache before falling through to the
// backend. Residency is monotonic (a committed record is never
// uncommitted), so a positive result is cached with no expiry (it leaves
// the cache only through LRU eviction); a miss is never cached, since it
// may turn true on a later call.
func (c *Checker) isResident(full record.FullName) bool {
	if c.residentHits.Contains(full) {
		return true
	}
	if !c.resident.HasRecord(full) {
		return false
	}
	c.residentHits.Add(full, struct{}{})
	return true
}

// resolve checks r's pointers against residency, registering r as waiting
// (or dropping it) as needed, and reports whether it is ready to commit.
func (c *Checker) resolve(r *record.Record, producer string, seq uint64) resolution {
	for _, p := range r.Pointers() {
		if !record.IsRecordName(p.String()) {
			log.Error("refcheck: dropping record with malformed pointer", "record", r.FullName(), "pointer", p)
			return resolutionDropped
		}
		if record.IsGenesisRecord(p) {
			if p != record.GenesisFullName(p.Producer) {
				log.Error("refcheck: dropping record with bad genesis pointer", "record", r.FullName(), "pointer", p, "producer", producer)
				return resolutionDropped
			}
			continue
		}
		if c.isResident(p) {
			if _, stillWaiting := c.waiting[p]; !stillWaiting {
				continue
			}
		}
		c.waiting[r.FullName()] = waitEntry{record: r, producer: producer, seq: seq}
		c.reverse[p] = append(c.reverse[p], r.FullName())
		return resolutionBlocked
	}
	return resolutionReady
}
