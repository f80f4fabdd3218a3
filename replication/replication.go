// Package replication implements the replication counter (C6): an estimate
// of how many independent producers have, transitively, witnessed this
// logger's own chain up to a given self-sequence number.
package replication

import (
	"sort"

	"github.com/ethereum/go-ethereum/common/lru"

	"github.com/mnemosyne/mnemosyne/record"
)

// envelopeCacheSize bounds the per-producer envelope cache. A deployment
// can see far more distinct producers over its lifetime than it ever
// counts toward replication (r), so envelopes are cached rather than kept
// forever; an evicted producer simply rebuilds its envelope from scratch
// off its next witnessed record.
const envelopeCacheSize = 1024

// envelopeEntry is one (their_seq -> self_seq) witness point.
type envelopeEntry struct {
	theirSeq uint64
	selfSeq  uint64
}

// envelope is a per-producer "monotone envelope": keys strictly increasing
// implies values strictly increasing.
type envelope struct {
	entries []envelopeEntry
}

func newEnvelope() *envelope { return &envelope{} }

// lookupFloor returns the witnessed self-seq at the largest key <= theirSeq.
func (e *envelope) lookupFloor(theirSeq uint64) (uint64, bool) {
	i := sort.Search(len(e.entries), func(i int) bool { return e.entries[i].theirSeq > theirSeq })
	if i == 0 {
		return 0, false
	}
	return e.entries[i-1].selfSeq, true
}

// dropBelow removes every entry whose value is below floor.
func (e *envelope) dropBelow(floor uint64) {
	out := e.entries[:0]
	for _, ent := range e.entries {
		if ent.selfSeq >= floor {
			out = append(out, ent)
		}
	}
	e.entries = out
}

// update inserts or refreshes the witness point (theirSeq, selfSeq),
// preserving the strictly-increasing invariant. Returns whether the
// envelope actually changed.
func (e *envelope) update(theirSeq, selfSeq uint64) bool {
	idx := sort.Search(len(e.entries), func(i int) bool { return e.entries[i].theirSeq >= theirSeq })
	exists := idx < len(e.entries) && e.entries[idx].theirSeq == theirSeq
	if exists && e.entries[idx].selfSeq >= selfSeq {
		return false
	}
	if exists {
		e.entries[idx].selfSeq = selfSeq
	} else {
		e.entries = append(e.entries, envelopeEntry{})
		copy(e.entries[idx+1:], e.entries[idx:])
		e.entries[idx] = envelopeEntry{theirSeq: theirSeq, selfSeq: selfSeq}
	}

	// Enforce monotonicity forward: later entries with value <= selfSeq are
	// now redundant (this entry already witnesses at least as much).
	j := idx + 1
	for j < len(e.entries) && e.entries[j].selfSeq <= selfSeq {
		j++
	}
	e.entries = append(e.entries[:idx+1], e.entries[j:]...)

	// If the left neighbor already witnesses more, this entry adds nothing.
	if idx > 0 && e.entries[idx-1].selfSeq > selfSeq {
		e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
		return false
	}
	return true
}

// Counter is the replication counter (C6) for a single logger (self).
type Counter struct {
	self string
	r    int // max_counted_replication; 0 disables the counter entirely

	envelopes *lru.Cache[string, *envelope]
	locations map[uint64]map[string]bool // self_seq -> set of producers
	tracked   map[string]uint64          // producer -> self_seq currently tracked at
}

// New constructs a replication counter tracking up to r distinct producers.
// r == 0 disables counting: RecordUpdate becomes a no-op and
// MaxReferenceSeqNo always returns 0.
func New(self string, r int) *Counter {
	return &Counter{
		self:      self,
		r:         r,
		envelopes: lru.NewCache[string, *envelope](envelopeCacheSize),
		locations: make(map[uint64]map[string]bool),
		tracked:   make(map[string]uint64),
	}
}

func (c *Counter) lowestLocationKey() (uint64, bool) {
	if len(c.locations) == 0 {
		return 0, false
	}
	lowest, first := uint64(0), true
	for k := range c.locations {
		if first || k < lowest {
			lowest, first = k, false
		}
	}
	return lowest, true
}

func (c *Counter) track(selfSeq uint64, producer string) {
	set := c.locations[selfSeq]
	if set == nil {
		set = make(map[string]bool)
		c.locations[selfSeq] = set
	}
	set[producer] = true
	c.tracked[producer] = selfSeq
}

func (c *Counter) untrack(selfSeq uint64, producer string) {
	if set := c.locations[selfSeq]; set != nil {
		delete(set, producer)
		if len(set) == 0 {
			delete(c.locations, selfSeq)
		}
	}
}

// RecordUpdate folds a newly-committed record produced by producer (at
// theirSeq, in producer's own sequence space, carrying pointers) into the
// counter. It is a no-op when producer is self.
func (c *Counter) RecordUpdate(producer string, theirSeq uint64, pointers []record.FullName) {
	if c.r == 0 || producer == c.self {
		return
	}

	var pointedTo uint64
	for _, p := range pointers {
		var candidate uint64
		var ok bool
		if p.Producer == c.self {
			candidate, ok = p.Seq, true
		} else if env, has := c.envelopes.Get(p.Producer); has {
			candidate, ok = env.lookupFloor(p.Seq)
		}
		if ok && candidate > pointedTo {
			pointedTo = candidate
		}
	}
	if pointedTo == 0 {
		return
	}

	floor, hasFloor := c.lowestLocationKey()
	if hasFloor && pointedTo < floor {
		return
	}

	env, has := c.envelopes.Get(producer)
	if !has {
		env = newEnvelope()
		c.envelopes.Add(producer, env)
	}
	if hasFloor {
		env.dropBelow(floor)
	}
	if !env.update(theirSeq, pointedTo) {
		return
	}

	if old, wasTracked := c.tracked[producer]; wasTracked {
		c.untrack(old, producer)
	}
	c.track(pointedTo, producer)

	for len(c.tracked) > c.r {
		lowest, ok := c.lowestLocationKey()
		if !ok {
			break
		}
		for p := range c.locations[lowest] {
			delete(c.tracked, p)
		}
		delete(c.locations, lowest)
	}
}

// GetCounts returns the currently-tracked self-seqs, highest first.
func (c *Counter) GetCounts() []uint64 {
	keys := make([]uint64, 0, len(c.locations))
	for k := range c.locations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

// MaxReferenceSeqNo returns the highest self-sequence k such that at least
// R distinct other producers have each witnessed self at sequence >= k, or
// 0 if fewer than R producers are currently tracked.
func (c *Counter) MaxReferenceSeqNo() uint64 {
	if c.r == 0 || len(c.tracked) != c.r {
		return 0
	}
	lowest, ok := c.lowestLocationKey()
	if !ok {
		return 0
	}
	return lowest
}
