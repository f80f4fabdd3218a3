// Package transport declares the abstract capability Mnemosyne consumes
// from the underlying content-addressed pub/sub substrate and its
// state-vector sync layer. Per spec.md §1 this substrate — and key
// management/signature verification — are external collaborators; this
// core never depends on a concrete network stack, only on these
// interfaces, so any real NDN-like substrate can be plugged in behind
// them.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrFetchTimeout is returned by Fetch when no response arrives before the
// deadline. Logged and non-fatal: the missing sequence simply reappears on
// the next sync update (§7).
var ErrFetchTimeout = errors.New("transport: fetch timeout")

// ErrNack is returned by Fetch when the substrate actively refused the
// request (as opposed to timing out).
var ErrNack = errors.New("transport: nacked")

// Transport is the abstract capability consumed from the content-addressed
// pub/sub substrate: publish, fetch (direct or via a forwarding hint),
// recovery-hint serving, and the two notification shapes (missing-range,
// subscription data) that drive ingestion.
type Transport interface {
	// Publish injects payload as the next sequence number for producer,
	// under the given freshness period and content type, and returns the
	// assigned sequence and the content digest the substrate computed —
	// the digest that becomes the final component of the full name.
	Publish(ctx context.Context, producer string, payload []byte, freshness time.Duration, contentType uint32) (seq uint64, digest [32]byte, err error)

	// Fetch retrieves the data unit named producer/RECORD/seq. If
	// hintPrefix is non-empty, the request is routed via that forwarding
	// hint instead of directly to producer. Returns ErrFetchTimeout if
	// nothing arrives within timeout.
	Fetch(ctx context.Context, producer string, seq uint64, hintPrefix string, timeout time.Duration) (payload []byte, digest [32]byte, err error)

	// RegisterHintHandler answers fetches arriving under hintPrefix by
	// calling find with the requested producer/seq; find returns ok=false
	// if it has nothing to serve.
	RegisterHintHandler(hintPrefix string, find func(producer string, seq uint64) (payload []byte, digest [32]byte, ok bool))

	// Subscribe registers a callback invoked for every (producer, seq,
	// payload) delivered to the given interest groups.
	Subscribe(groups []string, onData func(producer string, seq uint64, payload []byte, digest [32]byte))

	// OnMissingRange registers a callback invoked whenever the sync layer
	// discovers that [low, high] (inclusive) of producer's sequence space
	// is not yet locally known.
	OnMissingRange(fn func(producer string, low, high uint64))
}
