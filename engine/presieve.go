package engine

import "math/big"

// doPresieveTask implements C4: for every prime in [firstIdx, lastIdx), and
// for every sieve worker and every pattern offset, compute the first sieve
// position that prime eliminates and deposit it either into the dense
// factorsToEliminate table (primes < factorMax) or the additional-factor
// side channel (primes >= factorMax, via a thread-local cache drained on
// overflow and at task end).
func (e *Engine) doPresieveTask(w *work, firstIdx, lastIdx int) {
	k := len(e.cfg.Pattern)
	half := e.derived.HalfPattern
	sieveSize := e.derived.SieveSize
	factorMax := e.derived.FactorMax
	threshold := e.derived.PrimesIndexThreshold

	firstCandidate := new(big.Int).Add(w.primorialMultipleStart, new(big.Int).SetUint64(e.cfg.PrimorialOffsets[0]))

	// per-sieve-worker scratch cache, drained on overflow or at task end.
	caches := make([][sieveCacheSize]uint64, len(e.sieves))
	cacheLens := make([]int, len(e.sieves))

	flush := func(sieveIdx int) {
		n := cacheLens[sieveIdx]
		sv := e.sieves[sieveIdx]
		for j := 0; j < n; j++ {
			x := caches[sieveIdx][j]
			iter := x / sieveSize
			pos := uint32(x % sieveSize)
			if iter < uint64(len(sv.additionalFactors)) {
				sv.depositAdditional(iter, pos, &e.additionalGrowMu)
			}
		}
		cacheLens[sieveIdx] = 0
	}

	deposit := func(sieveIdx int, i int, f int, fp uint64) {
		if i < threshold {
			e.sieves[sieveIdx].factorsToEliminate[k*i+f] = uint32(fp)
			return
		}
		if fp >= factorMax {
			return
		}
		idx := cacheLens[sieveIdx]
		caches[sieveIdx][idx] = fp
		cacheLens[sieveIdx] = idx + 1
		if cacheLens[sieveIdx] == sieveCacheSize {
			flush(sieveIdx)
		}
	}

	pBig := new(big.Int)
	for i := firstIdx; i < lastIdx; i++ {
		if i%cancelPollPrimes == 0 && !w.current.Load() {
			return
		}
		p := e.primes.At(i)
		mi0 := e.derived.ModularInverses[i-e.derived.PrimorialNumber]

		pBig.SetUint64(p)
		rem := new(big.Int).Mod(firstCandidate, pBig).Uint64()
		var fp0 uint64
		if rem == 0 {
			fp0 = 0
		} else {
			fp0 = mulModU64(p-rem, mi0, p)
		}

		// fp carries over from one sieve worker to the next: after worker
		// j-1's pattern walk it sits at offset PrimorialOffsets[j-1] plus the
		// pattern sum, so subtracting PrimorialOffsetDiff[j-1] lands it on
		// PrimorialOffsets[j].
		fp := fp0
		for sieveIdx := range e.sieves {
			if sieveIdx > 0 {
				d := reduceInt64Mod(e.derived.PrimorialOffsetDiff[sieveIdx-1], p)
				fp = subModU64(fp, mulModU64(mi0, d, p), p)
			}
			deposit(sieveIdx, i, 0, fp)
			for f := 1; f < k; f++ {
				h := half[f] % p
				miH := mulModU64(mi0, (2*h)%p, p)
				fp = subModU64(fp, miH, p)
				deposit(sieveIdx, i, f, fp)
			}
		}
	}

	for sieveIdx := range e.sieves {
		flush(sieveIdx)
	}
}
