// Package store implements the Mnemosyne backend (C2): a durable ordered
// key→value store over full record names, plus a small meta-data keyspace,
// with deferred/coalesced checkpoint callbacks.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mnemosyne/mnemosyne/record"
)

// ErrBackendOpenFailed is fatal: the underlying store could not be opened.
var ErrBackendOpenFailed = errors.New("store: backend open failed")

// ErrCheckpointWriteFailed is fatal: a registered backup callback reported
// failure, meaning the checkpoint could not be safely written.
var ErrCheckpointWriteFailed = errors.New("store: checkpoint write failed")

// ErrMetaKeyReserved is returned by PlaceMeta/GetMeta when the key begins
// with '/', the prefix reserved for record keys.
var ErrMetaKeyReserved = errors.New("store: meta key must not begin with '/'")

const recordKeyPrefix = "/"

// Backend is the pluggable durable/in-memory key-value store described by
// C2. It is not safe for concurrent use: the reactor model (§5) means a
// single goroutine owns it at a time.
type Backend struct {
	kv ethdb.KeyValueStore

	backupFreq  uint64 // seq_no_backup_freq; 0 means unbounded (never auto-fires)
	backupCount uint64
	callbacks   []func() bool

	mu     sync.Mutex // guards callbacks/backupCount against re-entrant TriggerBackup
	closer func() error
}

func newBackend(kv ethdb.KeyValueStore, backupFreq uint64, closer func() error) *Backend {
	return &Backend{kv: kv, backupFreq: backupFreq, closer: closer}
}

// Close releases the underlying store (and, for a durable backend, the
// directory lock file).
func (b *Backend) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

func recordKey(full record.FullName) []byte {
	return []byte(recordKeyPrefix + full.String())
}

// GetRecord looks up a record by its full name.
func (b *Backend) GetRecord(full record.FullName) (*record.Record, bool, error) {
	data, err := b.kv.Get(recordKey(full))
	if err != nil {
		return nil, false, nil //nolint:nilerr // ethdb.Get returns an error for "not found"
	}
	r, err := record.Decoded(full, data)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// HasRecord reports whether full is resident, without decoding it.
func (b *Backend) HasRecord(full record.FullName) bool {
	ok, _ := b.kv.Has(recordKey(full))
	return ok
}

// PutRecord stores a sealed record keyed by its full name. It reports
// whether the record was newly inserted (false if it was already present,
// making insertion idempotent per P6).
func (b *Backend) PutRecord(r *record.Record) (bool, error) {
	if !r.Sealed() {
		return false, errors.New("store: cannot put an unsealed record")
	}
	key := recordKey(r.FullName())
	if ok, _ := b.kv.Has(key); ok {
		return false, nil
	}
	data, err := r.Encode()
	if err != nil {
		return false, err
	}
	if err := b.kv.Put(key, data); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteRecord removes a record. Mnemosyne's core never calls this in
// normal operation (records are never deleted); it exists for completeness
// and for tests that need to simulate store corruption/recovery.
func (b *Backend) DeleteRecord(full record.FullName) error {
	return b.kv.Delete(recordKey(full))
}

// ListRecord returns the full names stored under prefix (a producer
// prefix, or a producer prefix plus "/RECORD"), ordered ascending by name.
// count == 0 returns every match.
func (b *Backend) ListRecord(prefix string, count int) ([]record.FullName, error) {
	it := b.kv.NewIterator([]byte(recordKeyPrefix+prefix), nil)
	defer it.Release()

	var out []record.FullName
	for it.Next() {
		key := string(it.Key())
		full, err := record.ParseFullName(strings.TrimPrefix(key, recordKeyPrefix))
		if err != nil {
			log.Error("store: skipping malformed record key", "key", key, "err", err)
			continue
		}
		out = append(out, full)
		if count > 0 && len(out) >= count {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// PlaceMeta stores a meta-data value. Keys beginning with '/' are rejected
// since that prefix is reserved for record keys.
func (b *Backend) PlaceMeta(key string, value []byte) (bool, error) {
	if strings.HasPrefix(key, recordKeyPrefix) {
		return false, ErrMetaKeyReserved
	}
	if err := b.kv.Put([]byte(key), value); err != nil {
		return false, err
	}
	return true, nil
}

// GetMeta retrieves a meta-data value.
func (b *Backend) GetMeta(key string) ([]byte, bool, error) {
	if strings.HasPrefix(key, recordKeyPrefix) {
		return nil, false, ErrMetaKeyReserved
	}
	data, err := b.kv.Get([]byte(key))
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}
	return data, true, nil
}

// AddBackupCallback registers fn to run when the deferred backup counter
// saturates. Callbacks run in registration order.
func (b *Backend) AddBackupCallback(fn func() bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, fn)
}

// RemoveBackupCallback deregisters a previously added callback, comparing
// by function pointer identity. Supplements spec.md's add-only C2 with the
// teardown path original_source/src/backend/backend.cpp exposes. Nothing
// in this repository outside the tests registers a callback it later
// removes; the admin server registers no backup callback.
func (b *Backend) RemoveBackupCallback(fn func() bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	target := reflectValuePointer(fn)
	for i, cb := range b.callbacks {
		if reflectValuePointer(cb) == target {
			b.callbacks = append(b.callbacks[:i], b.callbacks[i+1:]...)
			return
		}
	}
}

// TriggerBackup increments the deferred backup counter; once it reaches
// seq_no_backup_freq, every registered callback runs in insertion order. If
// any callback returns false, that is ErrCheckpointWriteFailed: fatal,
// since it signals a data-loss risk the process must not continue past.
// Callbacks must never call TriggerBackup themselves (the backend is not
// re-entrant on this path).
func (b *Backend) TriggerBackup() error {
	b.mu.Lock()
	b.backupCount++
	fire := b.backupFreq > 0 && b.backupCount >= b.backupFreq
	var callbacks []func() bool
	if fire {
		callbacks = append([]func() bool(nil), b.callbacks...)
		b.backupCount = 0
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		if !cb() {
			return ErrCheckpointWriteFailed
		}
	}
	return nil
}
