package protocoldetect

import (
	"sync"
	"sync/atomic"
	"time"
)

// tagStats accumulates per-tag counters. Count uses a lock-free atomic;
// the running sum/sum-of-squares needed for mean/variance are two floats
// that must move together, so they share a small per-tag mutex rather than
// a single detector-wide lock — contention is bounded to one tag instead
// of every tag serializing on one lock.
type tagStats struct {
	count    atomic.Uint64
	mu       sync.Mutex
	sumNanos float64
	sumSqNanos float64
	lastSeen int64 // monotonic sequence number of the most recent recording
}

func (t *tagStats) record(elapsed time.Duration, seq int64) {
	t.count.Add(1)
	ns := float64(elapsed.Nanoseconds())
	t.mu.Lock()
	t.sumNanos += ns
	t.sumSqNanos += ns * ns
	t.lastSeen = seq
	t.mu.Unlock()
}

func (t *tagStats) snapshot() TagSnapshot {
	count := t.count.Load()
	t.mu.Lock()
	sum, sumSq, lastSeen := t.sumNanos, t.sumSqNanos, t.lastSeen
	t.mu.Unlock()

	snap := TagSnapshot{Count: count, LastSeen: lastSeen}
	if count == 0 {
		return snap
	}
	mean := sum / float64(count)
	snap.MeanElapsed = time.Duration(mean)
	if count > 1 {
		variance := sumSq/float64(count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		snap.VarianceNanos = variance
	}
	return snap
}

// TagSnapshot is a read-only view of one tag's accumulated statistics.
type TagSnapshot struct {
	Count       uint64
	MeanElapsed time.Duration
	VarianceNanos float64
	LastSeen    int64
}

// RecentEntry is one slot of the Stats ring buffer.
type RecentEntry struct {
	Tag        ProtocolTag
	Confidence float64
	Method     Method
	Elapsed    time.Duration
	Success    bool
}

// Stats is the §4.G accumulator: monotonically increasing counters, cheap
// running mean/variance per tag, and a fixed-size most-recent-N ring. It is
// the one piece of mutable state a shared-immutable Detector holds, and
// every mutation here must tolerate concurrent callers (§5).
type Stats struct {
	total      atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64
	seq        atomic.Int64

	tagsMu sync.RWMutex
	tags   map[ProtocolTag]*tagStats

	ringMu  sync.Mutex
	ring    []RecentEntry
	ringPos int
	ringLen int
}

// NewStats returns a Stats accumulator with a ring buffer of the given
// capacity (0 disables the ring).
func NewStats(ringCapacity int) *Stats {
	return &Stats{
		tags: make(map[ProtocolTag]*tagStats),
		ring: make([]RecentEntry, ringCapacity),
	}
}

func (s *Stats) tagFor(tag ProtocolTag) *tagStats {
	s.tagsMu.RLock()
	t, ok := s.tags[tag]
	s.tagsMu.RUnlock()
	if ok {
		return t
	}
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	if t, ok := s.tags[tag]; ok {
		return t
	}
	t = &tagStats{}
	s.tags[tag] = t
	return t
}

func (s *Stats) pushRing(entry RecentEntry) {
	if len(s.ring) == 0 {
		return
	}
	s.ringMu.Lock()
	s.ring[s.ringPos] = entry
	s.ringPos = (s.ringPos + 1) % len(s.ring)
	if s.ringLen < len(s.ring) {
		s.ringLen++
	}
	s.ringMu.Unlock()
}

// RecordSuccess records a successful classification.
func (s *Stats) RecordSuccess(result DetectionResult) {
	s.total.Add(1)
	s.successes.Add(1)
	seq := s.seq.Add(1)
	s.tagFor(result.Info.Tag).record(result.Elapsed, seq)
	s.pushRing(RecentEntry{
		Tag: result.Info.Tag, Confidence: result.Info.Confidence,
		Method: result.Method, Elapsed: result.Elapsed, Success: true,
	})
}

// RecordFailure records a failed classification attributed to Unknown.
func (s *Stats) RecordFailure(elapsed time.Duration) {
	s.total.Add(1)
	s.failures.Add(1)
	seq := s.seq.Add(1)
	s.tagFor(Unknown).record(elapsed, seq)
	s.pushRing(RecentEntry{Tag: Unknown, Elapsed: elapsed, Success: false})
}

// Reset zeroes every counter atomically with respect to readers: each
// counter is swapped to zero independently, so a concurrent reader may
// observe a partially-reset snapshot but never a corrupted one.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.successes.Store(0)
	s.failures.Store(0)
	s.seq.Store(0)
	s.tagsMu.Lock()
	s.tags = make(map[ProtocolTag]*tagStats)
	s.tagsMu.Unlock()
	s.ringMu.Lock()
	for i := range s.ring {
		s.ring[i] = RecentEntry{}
	}
	s.ringPos, s.ringLen = 0, 0
	s.ringMu.Unlock()
}

// StatsSnapshot is a point-in-time, eventually-consistent read of Stats.
type StatsSnapshot struct {
	Total, Successes, Failures uint64
	PerTag                     map[ProtocolTag]TagSnapshot
	Recent                     []RecentEntry
}

// Snapshot copies out every counter. Readers never block writers and vice
// versa; the result may interleave slightly across counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Total:     s.total.Load(),
		Successes: s.successes.Load(),
		Failures:  s.failures.Load(),
		PerTag:    make(map[ProtocolTag]TagSnapshot),
	}
	s.tagsMu.RLock()
	for tag, t := range s.tags {
		snap.PerTag[tag] = t.snapshot()
	}
	s.tagsMu.RUnlock()

	s.ringMu.Lock()
	if s.ringLen > 0 {
		snap.Recent = make([]RecentEntry, s.ringLen)
		for i := 0; i < s.ringLen; i++ {
			idx := (s.ringPos - s.ringLen + i + len(s.ring)) % len(s.ring)
			snap.Recent[i] = s.ring[idx]
		}
	}
	s.ringMu.Unlock()
	return snap
}

// MostCommonProtocol returns the tag with the highest recorded count, ties
// broken by the most recent occurrence.
func (s *Stats) MostCommonProtocol() (ProtocolTag, bool) {
	s.tagsMu.RLock()
	defer s.tagsMu.RUnlock()

	var best ProtocolTag
	var bestCount uint64
	var bestSeen int64
	found := false
	for tag, t := range s.tags {
		count := t.count.Load()
		if count == 0 {
			continue
		}
		t.mu.Lock()
		lastSeen := t.lastSeen
		t.mu.Unlock()
		if !found || count > bestCount || (count == bestCount && lastSeen > bestSeen) {
			best, bestCount, bestSeen, found = tag, count, lastSeen, true
		}
	}
	return best, found
}
