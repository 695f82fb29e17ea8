package engine

import "sync"

// tupleCounters is the k+1-length vector of candidate counts described in
// C8: index 0 counts every candidate that entered the Fermat test, index i
// (i>=1) counts candidates for which at least i of the tested pattern
// positions were probably prime (position 0 always among them); an optional
// position that fails is skipped, so these are the first i positions only
// when no earlier position failed. Merges are serialized by a short mutex and are skipped if
// the pattern length changed concurrently (a config reload mid-flight),
// matching the "only if the pattern length has not changed meanwhile" rule.
type tupleCounters struct {
	mu     sync.Mutex
	counts []uint64
}

func newTupleCounters(k int) *tupleCounters {
	return &tupleCounters{counts: make([]uint64, k+1)}
}

// merge adds local (length k+1) into the global counters, provided the
// global vector is still sized for the same k.
func (t *tupleCounters) merge(local []uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(local) != len(t.counts) {
		return
	}
	for i, v := range local {
		t.counts[i] += v
	}
}

// snapshot returns a copy of the current counters, safe to read without
// racing further merges.
func (t *tupleCounters) snapshot() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.counts))
	copy(out, t.counts)
	return out
}

// reset zeroes the counters, unless keepStats is true.
func (t *tupleCounters) reset(keepStats bool) {
	if keepStats {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.counts {
		t.counts[i] = 0
	}
}

// resize grows or shrinks the counters to k+1 entries, used when Init
// re-tunes the pattern length; stats are preserved in the overlapping
// prefix only when keepStats is true, otherwise the vector is zeroed.
func (t *tupleCounters) resize(k int, keepStats bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]uint64, k+1)
	if keepStats {
		copy(next, t.counts)
	}
	t.counts = next
}
