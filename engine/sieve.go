package engine

import (
	"math/big"
	"sync"
	"sync/atomic"
)

// nWorks is the size of the work-slot ring: one slot can finish draining its
// check tasks while the next job's sieve is already running.
const nWorks = 2

// maxCandidatesPerCheckTask bounds how many candidate offsets a single Check
// task batches together.
const maxCandidatesPerCheckTask = 64

// sieveCacheSize is the size of the per-sieve-worker scratch cache used
// while depositing additional factors during presieve; it is drained on
// overflow or at presieve-task end.
const sieveCacheSize = 32

// cancelPollPrimes / cancelPollWords set how often long loops re-check
// work.current, per the "every ~16k inner operations" cancellation
// guidance.
const (
	cancelPollPrimes = 1 << 10
	cancelPollWords  = 1 << 8
)

// sieveState is one sieve worker's per-job state (C3/C5). There is one
// instance per configured sieve worker, reused across jobs; factorsToEliminate
// and factorsTable are cleared/rewritten per job and per iteration
// respectively, never reallocated in steady state.
type sieveState struct {
	id int

	// presieveLock is held by the scheduler while additional factors for
	// iteration 0 are still being deposited; sieve iteration 0 blocks on it
	// before reading additionalCounts[0].
	presieveLock sync.Mutex

	// factorsToEliminate[k*i+f] is the current position-mod-sieveSize for
	// prime i and pattern-offset f, for primorialNumber <= i < threshold.
	// Sized k*threshold, matching the design's literal layout even though
	// entries below primorialNumber are never touched.
	factorsToEliminate []uint32

	// additionalFactors[iter] holds positions (already reduced into
	// [0, sieveSize)) contributed by primes >= factorMax, which hit at most
	// once per job. Preallocated to a safe upper bound (every prime above
	// the threshold, times k) so presieve never needs to grow it under lock.
	additionalFactors [][]uint32
	additionalCounts  []atomic.Uint64

	// factorsTable is the sieveWords*64-bit composite bitmap, bit b set
	// means position b is eliminated.
	factorsTable []uint64
}

func newSieveState(id int, k, threshold int, sieveWords uint64, sieveIterations uint64, additionalPrimeCount int) *sieveState {
	s := &sieveState{
		id:                 id,
		factorsToEliminate: make([]uint32, k*threshold),
		factorsTable:       make([]uint64, sieveWords),
	}
	cap := additionalPrimeCount * k
	if cap < 1 {
		cap = 1
	}
	s.additionalFactors = make([][]uint32, sieveIterations)
	s.additionalCounts = make([]atomic.Uint64, sieveIterations)
	for i := range s.additionalFactors {
		s.additionalFactors[i] = make([]uint32, cap)
	}
	return s
}

// resetForJob clears per-job state: the additional-factor counts (the
// factorsToEliminate dense table is rewritten wholesale by the next
// presieve, and factorsTable is zeroed at the start of every sieve
// iteration, so neither needs clearing here).
func (s *sieveState) resetForJob() {
	for i := range s.additionalCounts {
		s.additionalCounts[i].Store(0)
	}
}

// depositAdditional records position x (already folded into [0, sieveSize))
// for iteration iter, growing the backing slice under a short lock if the
// preallocated capacity is ever exceeded (it should not be, given the
// allocation bound in newSieveState, but a malformed/adversarial table must
// not corrupt memory).
func (s *sieveState) depositAdditional(iter uint64, x uint32, growMu *sync.Mutex) {
	slot := s.additionalCounts[iter].Add(1) - 1
	growMu.Lock()
	defer growMu.Unlock()
	if int(slot) >= len(s.additionalFactors[iter]) {
		grown := make([]uint32, int(slot)+1)
		copy(grown, s.additionalFactors[iter])
		s.additionalFactors[iter] = grown
	}
	s.additionalFactors[iter][slot] = x
}

// work is one of the nWorks ring slots: the per-job context shared by every
// task touching that job.
type work struct {
	idx                    int
	job                    Job
	primorialMultipleStart *big.Int
	current                atomic.Bool
	nRemainingCheckTasks   atomic.Int64

	// checkSignal is pinged (non-blocking, capacity 1) whenever a check task
	// finishes, so the scheduler can wake from its back-pressure wait without
	// busy-polling.
	checkSignal chan struct{}
}

func newWork(idx int) *work {
	return &work{idx: idx, checkSignal: make(chan struct{}, 1)}
}

func (w *work) reset(job Job, primorialMultipleStart *big.Int) {
	w.job = job
	w.primorialMultipleStart = primorialMultipleStart
	w.nRemainingCheckTasks.Store(0)
	w.current.Store(true)
}

// signalCheckDone wakes one blocked waiter (if any) without blocking itself.
func (w *work) signalCheckDone() {
	select {
	case w.checkSignal <- struct{}{}:
	default:
	}
}

// primorialMultipleStart computes the smallest multiple of primorial that is
// >= target: primorialMultipleStart = target + (primorial - target mod
// primorial) mod primorial, which is always within [target, target+primorial).
func primorialMultipleStart(target, primorial *big.Int) *big.Int {
	rem := new(big.Int).Mod(target, primorial)
	if rem.Sign() == 0 {
		return new(big.Int).Set(target)
	}
	start := new(big.Int).Sub(primorial, rem)
	start.Add(start, target)
	return start
}
