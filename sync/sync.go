// Package sync bridges the record store to the external transport: it is
// the only component that calls transport.Transport directly. Everything
// else in the core talks to records and the backend, never to the wire.
package sync

import (
	"context"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mnemosyne/mnemosyne/record"
	"github.com/mnemosyne/mnemosyne/store"
	"github.com/mnemosyne/mnemosyne/transport"
	"github.com/mnemosyne/mnemosyne/validator"
)

// Adapter is the record-sync adapter (C5). It owns no state of its own
// beyond its collaborators: publishing, storage, and fetch retries are all
// delegated straight through to the backend and transport.
type Adapter struct {
	backend   *store.Backend
	transport transport.Transport
	signer    validator.Signer

	hintPrefix    string
	recordRetries int
	hintedRetries int
	fetchTimeout  time.Duration

	retryBackoffMin, retryBackoffMax time.Duration
	rng                              *rand.Rand
}

// New constructs a record-sync adapter and registers its hint-prefix
// interest filter on transport. retryBackoffMin/Max bound the jittered
// delay applied between direct-fetch retry attempts, the same
// randomization primitive C8 uses for insert backoff, rather than
// hammering the transport in a tight loop.
func New(backend *store.Backend, tr transport.Transport, signer validator.Signer, hintPrefix string, recordRetries, hintedRetries int, fetchTimeout time.Duration, retryBackoffMin, retryBackoffMax time.Duration) *Adapter {
	a := &Adapter{
		backend:         backend,
		transport:       tr,
		signer:          signer,
		hintPrefix:      hintPrefix,
		recordRetries:   recordRetries,
		hintedRetries:   hintedRetries,
		fetchTimeout:    fetchTimeout,
		retryBackoffMin: retryBackoffMin,
		retryBackoffMax: retryBackoffMax,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	tr.RegisterHintHandler(hintPrefix, a.find)
	return a
}

func (a *Adapter) jitteredBackoff() time.Duration {
	lo, hi := int64(a.retryBackoffMin), int64(a.retryBackoffMax)
	if hi <= lo {
		return a.retryBackoffMin
	}
	return time.Duration(lo + a.rng.Int63n(hi-lo))
}

// Publish encodes r's body into a data unit named record_name(producer,
// next_seq), signs it, stores it in C2, and injects it to the transport.
// Returns the sequence number the transport assigned.
func (a *Adapter) Publish(ctx context.Context, r *record.Record, producer string, freshness time.Duration, contentType uint32) (uint64, error) {
	payload, err := r.Encode()
	if err != nil {
		return 0, err
	}
	signed, err := a.signer.Sign(producer, payload)
	if err != nil {
		return 0, err
	}
	seq, digest, err := a.transport.Publish(ctx, producer, signed, freshness, contentType)
	if err != nil {
		return 0, err
	}
	full := record.FullName{Name: record.Name{Producer: producer, Seq: seq}, Digest: digest}
	if err := r.Seal(full); err != nil {
		return 0, err
	}
	if _, err := a.backend.PutRecord(r); err != nil {
		return 0, err
	}
	return seq, nil
}

// OnData is the signature fetch/subscribe callbacks hand wire bytes to: it
// decodes and validates before returning a usable *record.Record.
type OnData func(r *record.Record, producer string, seq uint64)
type OnValidationError func(producer string, seq uint64, err error)
type OnTimeout func(producer string, seq uint64)

// Fetch tries the direct path first, up to directRetries times, then
// retries via the forwarding hint up to hintedRetries times. Callers fetch
// self's own sequence space with directRetries=0: self is expected to
// recover via the hint path since a record it just published can briefly
// lag its own publish confirmation.
func (a *Adapter) Fetch(ctx context.Context, producer string, seq uint64, directRetries int, val validator.Validator, onData OnData, onValidationError OnValidationError, onTimeout OnTimeout) {
	data, digest, err := a.fetchWithRetries(ctx, producer, seq, "", directRetries)
	if err != nil {
		data, digest, err = a.fetchWithRetries(ctx, producer, seq, a.hintPrefix, a.hintedRetries)
	}
	if err != nil {
		log.Debug("sync fetch exhausted retries", "producer", producer, "seq", seq, "err", err)
		onTimeout(producer, seq)
		return
	}

	name := record.RecordName(producer, seq).String()
	if err := val.Validate(name, data); err != nil {
		onValidationError(producer, seq, err)
		return
	}
	full := record.FullName{Name: record.Name{Producer: producer, Seq: seq}, Digest: digest}
	r, err := record.Decoded(full, data)
	if err != nil {
		onValidationError(producer, seq, err)
		return
	}
	onData(r, producer, seq)
}

func (a *Adapter) fetchWithRetries(ctx context.Context, producer string, seq uint64, hintPrefix string, retries int) ([]byte, [32]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, [32]byte{}, ctx.Err()
			case <-time.After(a.jitteredBackoff()):
			}
		}
		data, digest, err := a.transport.Fetch(ctx, producer, seq, hintPrefix, a.fetchTimeout)
		if err == nil {
			return data, digest, nil
		}
		lastErr = err
	}
	return nil, [32]byte{}, lastErr
}

// find answers hinted interests straight from C2: it performs
// list_record(name, prefix?) and returns a hit only if the match covers
// the whole requested name.
func (a *Adapter) find(producer string, seq uint64) ([]byte, [32]byte, bool) {
	want := record.RecordName(producer, seq).String()
	matches, err := a.backend.ListRecord(want, 1)
	if err != nil || len(matches) == 0 {
		return nil, [32]byte{}, false
	}
	full := matches[0]
	if full.Name.Producer != producer || full.Name.Seq != seq {
		return nil, [32]byte{}, false
	}
	r, ok, err := a.backend.GetRecord(full)
	if err != nil || !ok {
		return nil, [32]byte{}, false
	}
	payload, err := r.Encode()
	if err != nil {
		return nil, [32]byte{}, false
	}
	return payload, full.Digest, true
}

// ShouldCache is always false: the adapter keeps no in-memory mirror of
// served data, relying entirely on C2.
func (a *Adapter) ShouldCache() bool { return false }

// DirectRetries returns the configured record_fetch_retries budget, the
// direct-retry count callers should pass to Fetch for any producer other
// than self.
func (a *Adapter) DirectRetries() int { return a.recordRetries }
