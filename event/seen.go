package event

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// SeenEventSet deduplicates embedded events by full name. It is add-only
// with time-windowed eviction: every insertion purges entries older than
// ttl, so the set never grows unbounded even though nothing is ever
// explicitly removed.
type SeenEventSet struct {
	ttl time.Duration
	at  map[string]time.Time
}

// NewSeenEventSet constructs an empty set with the given eviction window.
func NewSeenEventSet(ttl time.Duration) *SeenEventSet {
	return &SeenEventSet{ttl: ttl, at: make(map[string]time.Time)}
}

// Contains reports whether name is currently tracked as seen.
func (s *SeenEventSet) Contains(name string) bool {
	_, ok := s.at[name]
	return ok
}

// Add records name as seen at now and purges every entry older than ttl.
func (s *SeenEventSet) Add(name string, now time.Time) {
	s.at[name] = now
	for k, t := range s.at {
		if s.ttl > 0 && now.Sub(t) > s.ttl {
			delete(s.at, k)
		}
	}
}

// Len reports how many names are currently tracked.
func (s *SeenEventSet) Len() int { return len(s.at) }

// Encode renders the set as a flat, sorted list of names for persistence.
// Timestamps are not preserved: Decode re-adds every name with a fresh
// timestamp, restarting its eviction window.
func (s *SeenEventSet) Encode() ([]byte, error) {
	names := make([]string, 0, len(s.at))
	for name := range s.at {
		names = append(names, name)
	}
	sort.Strings(names)
	return rlp.EncodeToBytes(names)
}

// DecodeSeenEventSet reconstructs a set from its persisted blob, re-adding
// every name at now.
func DecodeSeenEventSet(data []byte, ttl time.Duration, now time.Time) (*SeenEventSet, error) {
	var names []string
	if err := rlp.DecodeBytes(data, &names); err != nil {
		return nil, err
	}
	s := NewSeenEventSet(ttl)
	for _, name := range names {
		s.Add(name, now)
	}
	return s, nil
}
