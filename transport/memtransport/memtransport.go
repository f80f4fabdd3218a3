// Package memtransport is an in-process fake of the transport.Transport
// capability, used by every other package's tests so the DAG maintenance
// engine can be exercised without a real content-addressed pub/sub
// substrate. Multiple *Transport handles sharing one *Network model
// several loggers cooperating over the same substrate.
package memtransport

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mnemosyne/mnemosyne/transport"
)

// Network is the shared in-memory medium. Publishes on one Transport are
// visible to every Transport attached to the same Network.
type Network struct {
	mu sync.Mutex

	nextSeq map[string]uint64
	data    map[string]stored // key: producer + "\x00" + seq

	hintHandlers map[string]func(producer string, seq uint64) ([]byte, [32]byte, bool)
	subscribers  []subscriber
	missingFns   []func(producer string, low, high uint64)
}

type stored struct {
	payload []byte
	digest  [32]byte
}

type subscriber struct {
	groups []string
	onData func(producer string, seq uint64, payload []byte, digest [32]byte)
}

// NewNetwork constructs an empty shared medium.
func NewNetwork() *Network {
	return &Network{
		nextSeq:      make(map[string]uint64),
		data:         make(map[string]stored),
		hintHandlers: make(map[string]func(string, uint64) ([]byte, [32]byte, bool)),
	}
}

// NewTransport returns a transport.Transport handle onto n.
func (n *Network) NewTransport() *Transport {
	return &Transport{net: n}
}

func dataKey(producer string, seq uint64) string {
	var b []byte
	b = append(b, producer...)
	b = append(b, 0)
	for i := 0; i < 8; i++ {
		b = append(b, byte(seq>>(8*(7-i))))
	}
	return string(b)
}

// Transport is one logger's handle onto a shared Network.
type Transport struct {
	net *Network
}

var _ transport.Transport = (*Transport)(nil)

// Publish implements transport.Transport.
func (t *Transport) Publish(ctx context.Context, producer string, payload []byte, freshness time.Duration, contentType uint32) (uint64, [32]byte, error) {
	n := t.net
	n.mu.Lock()
	seq := n.nextSeq[producer] + 1
	digest := sha3(payload)
	n.data[dataKey(producer, seq)] = stored{payload: append([]byte(nil), payload...), digest: digest}
	n.nextSeq[producer] = seq
	subs := append([]subscriber(nil), n.subscribers...)
	missing := wrap(n.missingFns)
	n.mu.Unlock()

	for _, s := range subs {
		s.onData(producer, seq, payload, digest)
	}
	for _, fn := range missing {
		fn(producer, seq, seq)
	}
	return seq, digest, nil
}

func wrap(fns []func(producer string, low, high uint64)) []func(string, uint64, uint64) {
	out := make([]func(string, uint64, uint64), len(fns))
	for i, fn := range fns {
		out[i] = fn
	}
	return out
}

// Fetch implements transport.Transport.
func (t *Transport) Fetch(ctx context.Context, producer string, seq uint64, hintPrefix string, timeout time.Duration) ([]byte, [32]byte, error) {
	n := t.net
	n.mu.Lock()
	s, ok := n.data[dataKey(producer, seq)]
	if ok {
		n.mu.Unlock()
		return s.payload, s.digest, nil
	}
	if hintPrefix == "" {
		n.mu.Unlock()
		return nil, [32]byte{}, transport.ErrFetchTimeout
	}
	find, ok := n.hintHandlers[hintPrefix]
	n.mu.Unlock()
	if !ok {
		return nil, [32]byte{}, transport.ErrFetchTimeout
	}
	payload, digest, ok := find(producer, seq)
	if !ok {
		return nil, [32]byte{}, transport.ErrFetchTimeout
	}
	return payload, digest, nil
}

// RegisterHintHandler implements transport.Transport.
func (t *Transport) RegisterHintHandler(hintPrefix string, find func(producer string, seq uint64) ([]byte, [32]byte, bool)) {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hintHandlers[hintPrefix] = find
}

// Subscribe implements transport.Transport.
func (t *Transport) Subscribe(groups []string, onData func(producer string, seq uint64, payload []byte, digest [32]byte)) {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, subscriber{groups: groups, onData: onData})
}

// OnMissingRange implements transport.Transport.
func (t *Transport) OnMissingRange(fn func(producer string, low, high uint64)) {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missingFns = append(n.missingFns, fn)
}

func sha3(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}
