// Package event implements the event interface (C8): the ingress/egress
// boundary between application events and the DAG. It deduplicates
// incoming events, schedules randomized delayed insertion to avoid
// cold-start thundering herds, and watches the replication counter for
// newly-reached immutability frontiers.
package event

import (
	"context"
	"math/rand"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-bexpr"

	"github.com/mnemosyne/mnemosyne/daglogger"
	"github.com/mnemosyne/mnemosyne/internal/metrics"
	"github.com/mnemosyne/mnemosyne/record"
	"github.com/mnemosyne/mnemosyne/store"
	"github.com/mnemosyne/mnemosyne/transport"
	"github.com/mnemosyne/mnemosyne/validator"
)

// MnemosyneSeenEventKey is the meta key the seen-event set is persisted
// under (§6).
const MnemosyneSeenEventKey = "MnemosyneSeenEvent"

// FrontierUpdate is sent on the frontier feed whenever the replication
// counter's immutability estimate advances.
type FrontierUpdate struct {
	Seq uint64
}

// Interface is the event ingress/egress component (C8).
type Interface struct {
	logger         *daglogger.Logger
	eventValidator validator.Validator

	seen *SeenEventSet
	self *SelfInsertSet

	insertBackoffMin, insertBackoffMax time.Duration
	startupDelay                       time.Duration
	publishFreshness                   time.Duration
	contentType                        uint32

	rng      *rand.Rand
	schedule func(d time.Duration, fn func())
	now      func() time.Time

	ready bool

	// frontier is the last immutability frontier OnRecord reported.
	frontier uint64

	frontierFeed gethevent.Feed
	scope        gethevent.SubscriptionScope

	filter *bexpr.Evaluator
}

// eventMetadata is the datum an optional event_filter expression (§6's
// EventFilter option) is evaluated against, the acceptance-policy hook
// the original source's validator leaves as a TODO-shaped extension point.
// Inbound events carry no content-type of their own (transport.Subscribe's
// callback only delivers producer/seq/payload/digest), so only the fields
// actually observable off an inbound delivery are exposed here.
type eventMetadata struct {
	Producer string `bexpr:"producer"`
	Size     int    `bexpr:"size"`
}

// SetContentType sets the content type every self-authored record is
// published under (CreateRecord's content_type argument, per spec.md
// §3's publish operation). Defaults to 0 until set.
func (e *Interface) SetContentType(ct uint32) { e.contentType = ct }

// SetFilter compiles expr as a go-bexpr boolean expression and installs it
// as the acceptance policy every inbound event must satisfy before
// reaching the dedup/backoff pipeline. An empty expr clears the filter
// (accept everything).
func (e *Interface) SetFilter(expr string) error {
	if expr == "" {
		e.filter = nil
		return nil
	}
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return err
	}
	e.filter = eval
	return nil
}

// New constructs the event interface. logger is the already-started DAG
// logger (C7) new records are created through; eventValidator verifies
// both freshly-arrived and embedded events.
func New(logger *daglogger.Logger, eventValidator validator.Validator, seenTTL time.Duration, selfInsertResetFreq int, backoffMin, backoffMax, startupDelay time.Duration) *Interface {
	return &Interface{
		logger:            logger,
		eventValidator:    eventValidator,
		seen:              NewSeenEventSet(seenTTL),
		self:              NewSelfInsertSet(selfInsertResetFreq),
		insertBackoffMin:  backoffMin,
		insertBackoffMax:  backoffMax,
		startupDelay:      startupDelay,
		publishFreshness:  time.Minute,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		schedule:          func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		now:               time.Now,
	}
}

// Start subscribes to groups on tr after waiting startup_delay, to reduce
// cold-start duplicate publishes while every logger in the deployment is
// still replaying its own checkpoint.
func (e *Interface) Start(tr transport.Transport, groups []string) {
	e.schedule(e.startupDelay, func() {
		tr.Subscribe(groups, func(producer string, seq uint64, payload []byte, digest [32]byte) {
			name := record.RecordName(producer, seq).String()
			e.OnEventData(name, payload, producer)
		})
		e.ready = true
	})
}

// Ready reports whether the startup_delay grace period has elapsed and the
// interface is actively subscribed, for the admin server's status report.
func (e *Interface) Ready() bool { return e.ready }

// OnEventData handles one inbound event packet: validate, dedup, then
// schedule a (possibly zero) delayed insertion.
func (e *Interface) OnEventData(eventName string, packet []byte, producer string) {
	if err := e.eventValidator.Validate(eventName, packet); err != nil {
		log.Debug("event: discarding invalid event", "name", eventName, "err", err)
		return
	}
	if e.filter != nil {
		meta := eventMetadata{Producer: producer, Size: len(packet)}
		ok, err := e.filter.Evaluate(meta)
		if err != nil {
			log.Warn("event: filter evaluation failed, rejecting", "name", eventName, "err", err)
			return
		}
		if !ok {
			log.Debug("event: rejected by event_filter", "name", eventName, "producer", producer)
			return
		}
	}
	if e.seen.Contains(eventName) {
		return
	}

	delay := e.randomBackoff()
	if e.self.Contains(producer) {
		delay = 0
	}
	e.schedule(delay, func() { e.insertAt(eventName, packet, producer) })
}

func (e *Interface) randomBackoff() time.Duration {
	lo, hi := int64(e.insertBackoffMin), int64(e.insertBackoffMax)
	if hi <= lo {
		return e.insertBackoffMin
	}
	return time.Duration(lo + e.rng.Int63n(hi-lo))
}

func (e *Interface) insertAt(eventName string, packet []byte, producer string) {
	if e.seen.Contains(eventName) {
		return
	}
	e.self.Insert(producer)

	full, err := e.logger.CreateRecord(context.Background(), packet, e.publishFreshness, e.contentType)
	if err != nil {
		log.Warn("event: create_record failed for scheduled insert", "event", eventName, "err", err)
		return
	}
	log.Info("event: inserted event into the dag", "event", eventName, "record", full)
}

// OnRecord is the on-record callback wired to the DAG logger (C7): it
// validates the embedded event, marks it seen, clears any matching
// self-insert entry, and logs a new immutability frontier if the
// replication counter's estimate is above the last one reported.
func (e *Interface) OnRecord(r *record.Record) {
	body, ok := r.Body()
	if !ok {
		return
	}
	name := r.FullName().String()
	if err := e.eventValidator.Validate(name, body); err != nil {
		log.Debug("event: embedded event failed validation", "record", r.FullName(), "err", err)
		return
	}

	e.seen.Add(name, e.now())
	metrics.SeenEventCountGauge.Update(int64(e.seen.Len()))
	e.self.ReceivedOther(name)

	if repl := e.logger.ReplicationCounter(); repl != nil {
		if newMax := repl.MaxReferenceSeqNo(); newMax > e.frontier {
			e.frontier = newMax
			log.Info("event: immutability frontier advanced", "seq", newMax)
			e.frontierFeed.Send(FrontierUpdate{Seq: newMax})
		}
	}
}

// SubscribeFrontierUpdate registers a subscription for immutability
// frontier advances, for the admin server's push channel.
func (e *Interface) SubscribeFrontierUpdate(ch chan<- FrontierUpdate) gethevent.Subscription {
	return e.scope.Track(e.frontierFeed.Subscribe(ch))
}

// Close shuts down every subscription registered through
// SubscribeFrontierUpdate.
func (e *Interface) Close() { e.scope.Close() }

// Persist writes the seen-event set to the backend's meta keyspace.
func (e *Interface) Persist(backend *store.Backend) error {
	data, err := e.seen.Encode()
	if err != nil {
		return err
	}
	_, err = backend.PlaceMeta(MnemosyneSeenEventKey, data)
	return err
}

// Restore reloads the seen-event set from the backend's meta keyspace, if
// present. Every entry is re-added with a fresh timestamp: its eviction
// window restarts from process start, not from when it was persisted.
func (e *Interface) Restore(backend *store.Backend) error {
	data, ok, err := backend.GetMeta(MnemosyneSeenEventKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	seen, err := DecodeSeenEventSet(data, e.seen.ttl, e.now())
	if err != nil {
		return err
	}
	e.seen = seen
	return nil
}

// SeenCount exposes the seen-event set size, for diagnostics.
func (e *Interface) SeenCount() int { return e.seen.Len() }
