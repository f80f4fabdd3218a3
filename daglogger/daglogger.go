// Package daglogger implements the DAG maintenance engine (C7): checkpoint
// replay at startup, preceding-pointer tip selection for newly created
// records, and missing-range recovery driven by the transport's sync
// layer. It is the component that ties the backend (C2), the record-sync
// adapter (C5), the reference checker (C4) and the replication counter
// (C6) together into one reactor-driven logger.
package daglogger

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mnemosyne/mnemosyne/internal/metrics"
	"github.com/mnemosyne/mnemosyne/record"
	"github.com/mnemosyne/mnemosyne/refcheck"
	"github.com/mnemosyne/mnemosyne/replication"
	"github.com/mnemosyne/mnemosyne/store"
	syncadapter "github.com/mnemosyne/mnemosyne/sync"
	"github.com/mnemosyne/mnemosyne/transport"
	"github.com/mnemosyne/mnemosyne/validator"
	"github.com/mnemosyne/mnemosyne/vector"
)

// SeqNoBackupKey is the meta key the checkpoint version vector is
// persisted under (§6).
const SeqNoBackupKey = "SeqNoBackup"

// ErrTimingError is returned by CreateRecord when self's tip has not yet
// caught up with the last sequence self is known to have published: a
// fetch-in-progress race, not a permanent failure. Callers should retry.
var ErrTimingError = errors.New("daglogger: self tip fetch in progress")

// ErrNotEnoughTailingRecord is returned by CreateRecord when the tip map
// does not yet hold enough distinct producers to satisfy
// preceding_record_num.
var ErrNotEnoughTailingRecord = errors.New("daglogger: not enough tailing records for tip selection")

type tipEntry struct {
	full   record.FullName
	budget int
}

// MissingRange describes one producer's unresolved [Low, High] sequence
// gap, as reported by the transport's sync layer.
type MissingRange struct {
	Node      string
	Low, High uint64
}

// Logger is the DAG maintenance engine (C7).
type Logger struct {
	self               string
	p                  int // preceding_record_num
	maxSelfRefBudget   int // max_self_re_ref_count
	recordFetchRetries int

	backend        *store.Backend
	adapter        *syncadapter.Adapter
	checker        *refcheck.Checker
	repl           *replication.Counter
	transport      transport.Transport
	eventValidator validator.Validator
	onRecord       func(r *record.Record)

	vector         *vector.Vector
	tips           map[string]tipEntry
	knownSelfSeqID uint64

	rng *rand.Rand
	ctx context.Context
}

// New constructs a DAG logger. Start must be called once before use.
func New(
	self string, p, maxSelfRefBudget, recordFetchRetries int,
	backend *store.Backend, adapter *syncadapter.Adapter, tr transport.Transport,
	eventValidator validator.Validator, repl *replication.Counter,
	onRecord func(r *record.Record),
) *Logger {
	l := &Logger{
		self:               self,
		p:                  p,
		maxSelfRefBudget:   maxSelfRefBudget,
		recordFetchRetries: recordFetchRetries,
		backend:            backend,
		adapter:            adapter,
		transport:          tr,
		eventValidator:     eventValidator,
		repl:               repl,
		onRecord:           onRecord,
		vector:             vector.New(),
		tips:               make(map[string]tipEntry),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:                context.Background(),
	}
	l.checker = refcheck.New(backend, l.onReady)
	return l
}

// Vector returns the logger's checkpoint version vector.
func (l *Logger) Vector() *vector.Vector { return l.vector }

// TipCount returns the number of producers currently tracked in the tip
// map.
func (l *Logger) TipCount() int { return len(l.tips) }

// KnownSelfSeq returns m_known_self_seq_id.
func (l *Logger) KnownSelfSeq() uint64 { return l.knownSelfSeqID }

// ReplicationCounter exposes the wired replication counter (C6), or nil if
// none was configured.
func (l *Logger) ReplicationCounter() *replication.Counter { return l.repl }

// SetOnRecord (re)wires the on-record application callback. It exists so
// the event interface (C8), which is constructed after the logger so it
// can hold a reference to it, can complete the wiring in the other
// direction.
func (l *Logger) SetOnRecord(fn func(r *record.Record)) { l.onRecord = fn }

func (l *Logger) lookupResident(producer string, seq uint64) (record.FullName, *record.Record, bool) {
	name := record.RecordName(producer, seq).String()
	matches, err := l.backend.ListRecord(name, 1)
	if err != nil || len(matches) == 0 {
		return record.FullName{}, nil, false
	}
	full := matches[0]
	if full.Name.Producer != producer || full.Name.Seq != seq {
		return record.FullName{}, nil, false
	}
	r, ok, err := l.backend.GetRecord(full)
	if err != nil || !ok {
		return record.FullName{}, nil, false
	}
	return full, r, true
}

// Start runs the checkpoint-replay startup sequence: it reads the
// persisted version vector, walks C2 forward from each producer's
// checkpointed sequence, synthesizes public genesis entries if nothing was
// found, and registers the checkpoint callback with C2.
func (l *Logger) Start(ctx context.Context) error {
	l.ctx = ctx

	if raw, ok, err := l.backend.GetMeta(SeqNoBackupKey); err != nil {
		return err
	} else if ok {
		v, err := vector.Decode(raw)
		if err != nil {
			return err
		}
		l.vector = v
	}

	for _, producer := range l.vector.Producers() {
		s := l.vector.Get(producer)
		full, r, ok := l.lookupResident(producer, s)
		if ok {
			l.tips[producer] = tipEntry{full: full, budget: l.maxSelfRefBudget}
			if producer != l.self {
				l.invokeOnRecord(r)
			}
		} else if !(producer == l.self && s == 0) {
			log.Warn("daglogger: checkpoint entry missing from store", "producer", producer, "seq", s)
		}

		highest := s
		for {
			nextFull, nextR, ok := l.lookupResident(producer, highest+1)
			if !ok {
				break
			}
			highest++
			l.tips[producer] = tipEntry{full: nextFull, budget: l.maxSelfRefBudget}
			if producer != l.self {
				l.invokeOnRecord(nextR)
			}
		}
		if highest != s {
			log.Info("daglogger: replayed records ahead of checkpoint", "producer", producer, "from", s, "to", highest)
			l.vector.Set(producer, highest)
		}
	}

	if len(l.tips) == 0 {
		l.injectPublicGenesis()
	}
	if _, ok := l.tips[l.self]; !ok {
		l.tips[l.self] = tipEntry{full: record.GenesisFullName(l.self), budget: l.maxSelfRefBudget}
	}
	l.knownSelfSeqID = l.tips[l.self].full.Seq

	l.transport.OnMissingRange(func(node string, low, high uint64) {
		l.OnUpdate(l.ctx, []MissingRange{{Node: node, Low: low, High: high}})
	})
	l.backend.AddBackupCallback(l.persistCheckpoint)
	return nil
}

func (l *Logger) injectPublicGenesis() {
	for i := 0; len(l.tips) < l.p-1; i++ {
		producer := "/genesis/" + strconv.Itoa(i)
		l.tips[producer] = tipEntry{full: record.GenesisFullName(producer), budget: l.maxSelfRefBudget}
	}
}

func (l *Logger) invokeOnRecord(r *record.Record) {
	if l.onRecord != nil {
		l.onRecord(r)
	}
}

func (l *Logger) persistCheckpoint() bool {
	defer func(start time.Time) { metrics.CheckpointFlushTimer.UpdateSince(start) }(time.Now())

	data, err := l.vector.Encode()
	if err != nil {
		log.Error("daglogger: failed to encode checkpoint", "err", err)
		return false
	}
	if _, err := l.backend.PlaceMeta(SeqNoBackupKey, data); err != nil {
		log.Error("daglogger: failed to persist checkpoint", "err", err)
		return false
	}
	metrics.CheckpointSeqGauge.Update(int64(l.vector.Get(l.self)))
	return true
}

// selectPointers runs the tip-selection algorithm: self's tip is always
// included; among the remaining tips, it finds the highest remaining-ref
// budget threshold whose pool (tips with at least that budget) still has at
// least P-1 entries and samples P-1 of them uniformly without replacement.
func (l *Logger) selectPointers() ([]record.FullName, []string, error) {
	selfTip, ok := l.tips[l.self]
	if !ok {
		return nil, nil, ErrNotEnoughTailingRecord
	}

	type candidate struct {
		producer string
		entry    tipEntry
	}
	candidates := make([]candidate, 0, len(l.tips))
	for p, e := range l.tips {
		if p == l.self {
			continue
		}
		candidates = append(candidates, candidate{p, e})
	}

	need := l.p - 1
	if len(candidates) < need {
		return nil, nil, ErrNotEnoughTailingRecord
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].entry.budget > candidates[j].entry.budget })
	threshold := candidates[need-1].entry.budget

	pool := candidates[:0:0]
	for _, c := range candidates {
		if c.entry.budget >= threshold {
			pool = append(pool, c)
		}
	}
	l.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	chosen := pool[:need]

	pointers := make([]record.FullName, 0, l.p)
	pointers = append(pointers, selfTip.full)
	producers := make([]string, 0, need)
	for _, c := range chosen {
		pointers = append(pointers, c.entry.full)
		producers = append(producers, c.producer)
	}
	return pointers, producers, nil
}

// CreateRecord builds a new self-produced record over the current tip set,
// publishes it via the record-sync adapter, and folds it back in as a
// received record.
func (l *Logger) CreateRecord(ctx context.Context, body []byte, freshness time.Duration, contentType uint32) (record.FullName, error) {
	selfTip, ok := l.tips[l.self]
	if !ok || selfTip.full.Seq != l.knownSelfSeqID {
		return record.FullName{}, ErrTimingError
	}
	if len(l.tips) < l.p {
		return record.FullName{}, ErrNotEnoughTailingRecord
	}

	pointers, chosen, err := l.selectPointers()
	if err != nil {
		return record.FullName{}, err
	}

	r := record.New(pointers, body)
	seq, err := l.adapter.Publish(ctx, r, l.self, freshness, contentType)
	if err != nil {
		return record.FullName{}, err
	}

	delete(l.tips, l.self)
	for _, producer := range chosen {
		e := l.tips[producer]
		if e.budget <= 1 {
			delete(l.tips, producer)
		} else {
			e.budget--
			l.tips[producer] = e
		}
	}

	if err := l.AddReceivedRecord(r, l.self, seq); err != nil {
		return record.FullName{}, err
	}
	return r.FullName(), nil
}

// AddReceivedRecord commits a resident record (self-produced or arrived
// via C4) into the checkpoint, the backend, and the tip map.
func (l *Logger) AddReceivedRecord(r *record.Record, producer string, seq uint64) error {
	if expected := l.vector.Get(producer) + 1; expected != seq {
		log.Warn("daglogger: sequence continuity gap", "producer", producer, "want", expected, "got", seq)
	}
	l.vector.Set(producer, seq)
	if err := l.backend.TriggerBackup(); err != nil {
		// A failed checkpoint write is fatal: log.Crit terminates the process.
		log.Crit("daglogger: checkpoint write failed", "err", err)
	}
	if _, err := l.backend.PutRecord(r); err != nil {
		return err
	}
	l.tips[producer] = tipEntry{full: r.FullName(), budget: l.maxSelfRefBudget}
	metrics.TipCountGauge.Update(int64(len(l.tips)))
	metrics.RecordsCommittedMeter.Mark(1)

	if producer == l.self {
		if seq > l.knownSelfSeqID {
			l.knownSelfSeqID = seq
		}
		metrics.KnownSelfSeqGauge.Update(int64(l.knownSelfSeqID))
		return nil
	}

	metrics.RecordsReceivedMeter.Mark(1)
	if l.repl != nil {
		l.repl.RecordUpdate(producer, seq, r.Pointers())
		metrics.ReplicationFrontierGauge.Update(int64(l.repl.MaxReferenceSeqNo()))
	}
	l.invokeOnRecord(r)
	return nil
}

func (l *Logger) onReady(r *record.Record, producer string, seq uint64) {
	if err := l.AddReceivedRecord(r, producer, seq); err != nil {
		log.Error("daglogger: failed to commit resolved record", "producer", producer, "seq", seq, "err", err)
	}
}

// OnUpdate handles missing-range notifications from the transport: each
// range is fetched sequence by sequence (self uses 0 direct retries,
// everyone else uses record_fetch_retries direct then hinted_fetch_retries
// hinted) and handed to the reference checker once decoded.
func (l *Logger) OnUpdate(ctx context.Context, ranges []MissingRange) {
	for _, rg := range ranges {
		if rg.Node == l.self && rg.High > l.knownSelfSeqID {
			l.knownSelfSeqID = rg.High
		}

		last := l.vector.Get(rg.Node)
		if rg.Low > last {
			last = rg.Low
		}
		directRetries := l.recordFetchRetries
		if rg.Node == l.self {
			directRetries = 0
		}

		for seq := last; seq <= rg.High; seq++ {
			if seq == 0 {
				continue
			}
			l.adapter.Fetch(ctx, rg.Node, seq, directRetries, l.eventValidator,
				func(r *record.Record, producer string, seq uint64) {
					if err := record.CheckPointerCount(r.Pointers(), l.p); err != nil {
						log.Warn("daglogger: dropping malformed record", "producer", producer, "seq", seq, "err", err)
						return
					}
					l.checker.AddRecord(r, producer, seq)
				},
				func(producer string, seq uint64, err error) {
					log.Warn("daglogger: fetched record failed validation", "producer", producer, "seq", seq, "err", err)
				},
				func(producer string, seq uint64) {
					metrics.FetchTimeoutMeter.Mark(1)
					log.Debug("daglogger: fetch exhausted retries, will re-attempt on next update", "producer", producer, "seq", seq)
				},
			)
		}
	}
}
