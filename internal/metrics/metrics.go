// Package metrics registers Mnemosyne's runtime gauges against
// go-ethereum's metrics registry, the same wrapping pattern
// core/headerchain.go uses for its chain-head gauges.
package metrics

import (
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	// TipCountGauge tracks the current size of the DAG logger's tip map.
	TipCountGauge = metrics.NewRegisteredGauge("mnemosyne/tips/count", nil)

	// KnownSelfSeqGauge tracks m_known_self_seq_id.
	KnownSelfSeqGauge = metrics.NewRegisteredGauge("mnemosyne/self/known_seq", nil)

	// CheckpointSeqGauge tracks the highest self-sequence persisted in the
	// last checkpoint.
	CheckpointSeqGauge = metrics.NewRegisteredGauge("mnemosyne/checkpoint/self_seq", nil)

	// ReplicationFrontierGauge tracks the replication counter's
	// max_reference_seq_no().
	ReplicationFrontierGauge = metrics.NewRegisteredGauge("mnemosyne/replication/frontier", nil)

	// RefcheckWaitingGauge tracks how many records are currently held back
	// by the reference checker pending unresolved predecessors.
	RefcheckWaitingGauge = metrics.NewRegisteredGauge("mnemosyne/refcheck/waiting", nil)

	// SeenEventCountGauge tracks the event interface's seen-event set size.
	SeenEventCountGauge = metrics.NewRegisteredGauge("mnemosyne/event/seen_count", nil)

	// RecordsCommittedMeter counts records committed to the backend,
	// broken down by whether they were self-produced or received.
	RecordsCommittedMeter = metrics.NewRegisteredMeter("mnemosyne/records/committed", nil)
	RecordsReceivedMeter  = metrics.NewRegisteredMeter("mnemosyne/records/received", nil)
	FetchTimeoutMeter     = metrics.NewRegisteredMeter("mnemosyne/fetch/timeouts", nil)
	CheckpointFlushTimer  = metrics.NewRegisteredTimer("mnemosyne/checkpoint/flush", nil)
)

// Snapshot reports the current values of every gauge, for the admin
// status endpoint.
type Snapshot struct {
	TipCount            int64
	KnownSelfSeq        int64
	CheckpointSeq       int64
	ReplicationFrontier int64
	RefcheckWaiting     int64
	SeenEventCount      int64
	RecordsCommitted    int64
	RecordsReceived     int64
	FetchTimeouts       int64
}

// Snap reads every registered gauge/meter into a Snapshot.
func Snap() Snapshot {
	return Snapshot{
		TipCount:            TipCountGauge.Value(),
		KnownSelfSeq:        KnownSelfSeqGauge.Value(),
		CheckpointSeq:       CheckpointSeqGauge.Value(),
		ReplicationFrontier: ReplicationFrontierGauge.Value(),
		RefcheckWaiting:     RefcheckWaitingGauge.Value(),
		SeenEventCount:      SeenEventCountGauge.Value(),
		RecordsCommitted:    RecordsCommittedMeter.Count(),
		RecordsReceived:     RecordsReceivedMeter.Count(),
		FetchTimeouts:       FetchTimeoutMeter.Count(),
	}
}
