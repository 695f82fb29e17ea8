package engine

import "math/bits"

// doSieveTask implements C5 for one (workIndex, sieveId, iteration). It
// returns whether the scheduler should enqueue the next iteration for this
// sieve worker.
func (e *Engine) doSieveTask(w *work, sv *sieveState, iteration uint64) bool {
	hasMore := iteration+1 < e.cfg.SieveIterations

	if !w.current.Load() {
		return hasMore
	}

	for i := range sv.factorsTable {
		sv.factorsTable[i] = 0
	}

	k := len(e.cfg.Pattern)
	sieveSize := e.derived.SieveSize
	for i := e.derived.PrimorialNumber; i < e.derived.PrimesIndexThreshold; i++ {
		p := e.primes.At(i)
		for f := 0; f < k; f++ {
			idx := k*i + f
			pos := uint64(sv.factorsToEliminate[idx])
			for pos < sieveSize {
				sv.factorsTable[pos>>6] |= 1 << (pos & 63)
				pos += p
			}
			sv.factorsToEliminate[idx] = uint32(pos - sieveSize)
		}
		if i%cancelPollPrimes == 0 && !w.current.Load() {
			return hasMore
		}
	}

	if iteration == 0 {
		// Block until the scheduler has released the lock, i.e. until every
		// additional-factor presieve task for this job has completed.
		sv.presieveLock.Lock()
		sv.presieveLock.Unlock() //nolint:staticcheck // intentional lock/unlock as a barrier, not a critical section
	}

	if !w.current.Load() {
		return hasMore
	}

	cnt := sv.additionalCounts[iteration].Load()
	factors := sv.additionalFactors[iteration]
	for idx := uint64(0); idx < cnt && int(idx) < len(factors); idx++ {
		x := factors[idx]
		sv.factorsTable[x>>6] |= 1 << (x & 63)
	}

	if !w.current.Load() {
		return hasMore
	}

	factorStart := iteration * sieveSize
	var batch []uint32
	for word := uint64(0); word < e.derived.SieveWords; word++ {
		free := ^sv.factorsTable[word]
		for free != 0 {
			b := bits.TrailingZeros64(free)
			free &= free - 1
			pos := word*64 + uint64(b)
			batch = append(batch, uint32(pos))
			if len(batch) == maxCandidatesPerCheckTask {
				e.emitCheckTask(w, sv.id, factorStart, batch)
				batch = nil
			}
		}
		if word%cancelPollWords == 0 && !w.current.Load() {
			return hasMore
		}
	}
	if len(batch) > 0 {
		e.emitCheckTask(w, sv.id, factorStart, batch)
	}

	return hasMore
}
