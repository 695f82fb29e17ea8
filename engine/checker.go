package engine

import "math/big"

var bigOne = big.NewInt(1)
var bigTwo = big.NewInt(2)

// fermatBase2 reports whether 2^(n-1) mod n == 1. It is the sole primality
// oracle the engine uses at runtime: a probable-primality test, never a
// proof (the outer network re-validates).
func fermatBase2(n *big.Int) bool {
	if n.Bit(0) == 0 {
		return false
	}
	exp := new(big.Int).Sub(n, bigOne)
	r := new(big.Int).Exp(bigTwo, exp, n)
	return r.Cmp(bigOne) == 0
}

// doCheckTask implements C6: Fermat-test up to 64 candidates carried by t,
// walking the pattern's remaining positions on success and applying the
// prune rule on failure, emitting a Result for every candidate that reaches
// primeCountMin, and merging the local tuple counters into the engine's
// global counters exactly once per task.
func (e *Engine) doCheckTask(threadID int, w *work, t task) {
	if !w.current.Load() {
		return
	}

	k := len(e.cfg.Pattern)
	local := make([]uint64, k+1)

	candidateStart := new(big.Int).Set(w.primorialMultipleStart)
	candidateStart.Add(candidateStart, new(big.Int).Mul(e.derived.Primorial, new(big.Int).SetUint64(t.factorStart)))
	candidateStart.Add(candidateStart, new(big.Int).SetUint64(e.cfg.PrimorialOffsets[t.offsetID]))

	for _, off := range t.factorOffsets {
		if !w.current.Load() {
			break
		}

		c := new(big.Int).Add(candidateStart, new(big.Int).Mul(e.derived.Primorial, new(big.Int).SetUint64(uint64(off))))
		local[0]++

		if !fermatBase2(c) {
			// patternMin[0] is always true (Config.Validate enforces it),
			// so a position-0 failure always abandons the candidate.
			continue
		}
		primeCount := 1
		local[1]++

		// pattern is a gap sequence, not a list of absolute offsets: tuple
		// member f sits at c + sum(pattern[1..f]), so the walk must keep
		// accumulating onto a running candidate rather than re-adding
		// pattern[f] to c each time.
		cur := new(big.Int).Set(c)
		for f := 1; f < k; f++ {
			cur.Add(cur, e.patternBig[f])
			if fermatBase2(cur) {
				primeCount++
				local[primeCount]++
				continue
			}
			if e.cfg.PatternMin[f] {
				break
			}
			if primeCount+(e.cfg.PrimeCountTarget-1-f) < e.cfg.PrimeCountMin {
				break
			}
		}

		if primeCount >= e.cfg.PrimeCountMin && w.current.Load() {
			// The base of the tuple is c itself: pattern[0] is always 0, so
			// "the tuple's first element" and "the candidate the sieve
			// produced" are the same big.Int regardless of how many further
			// positions were confirmed.
			e.emitResult(Result{
				JobID:           w.job.ID,
				ThreadID:        threadID,
				Result:          new(big.Int).Set(c),
				PrimeCount:      primeCount,
				PrimorialNumber: e.derived.PrimorialNumber,
				PrimorialFactor: t.factorStart + off,
				PrimorialOffset: e.cfg.PrimorialOffsets[t.offsetID],
			})
		}
	}

	e.counters.merge(local)
}
