package engine

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// primeTableSplit is the boundary at which the prime table switches from a
// dense uint32 slice to a uint64 slice, keeping the common case (primes well
// under 2^32) cheap to store and iterate.
const primeTableSplit = uint64(1) << 32

// PrimeTable is the ordered list of primes <= some limit, split at 2^32 so
// the overwhelmingly common case (small primes) stays in a compact uint32
// slice. Len() is always even: the last entry is dropped if the natural
// count is odd, so downstream dense sieving can process primes in pairs.
type PrimeTable struct {
	small []uint32
	large []uint64
}

// Len returns the number of primes in the table.
func (t *PrimeTable) Len() int { return len(t.small) + len(t.large) }

// At returns the i'th prime (0-indexed, ascending).
func (t *PrimeTable) At(i int) uint64 {
	if i < len(t.small) {
		return uint64(t.small[i])
	}
	return t.large[i-len(t.small)]
}

// IndexAtLeast returns the smallest index i such that At(i) >= value,
// or Len() if no such prime is in the table.
func (t *PrimeTable) IndexAtLeast(value uint64) int {
	lo, hi := 0, t.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.At(mid) >= value {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// buildPrimeTable sieves every prime <= limit using a bit-packed sieve of
// Eratosthenes over the odd numbers (plus 2, handled specially), then splits
// the result at primeTableSplit. If file is non-empty, it is tried first; a
// malformed or insufficient file is a recoverable DataError and falls back
// to sieving in memory, it never aborts Init.
func buildPrimeTable(limit uint64, file string) (*PrimeTable, error, *DataError) {
	if limit < 2 {
		return nil, &ConfigError{Msg: "primeTableLimit must be >= 2"}, nil
	}

	if file != "" {
		if t, dataErr := loadPrimeTableFile(file, limit); t != nil {
			return t, nil, dataErr
		} else if dataErr != nil {
			// fall through to in-memory generation, returning the data error
			// as an informational diagnostic alongside the successful table.
			t, err := sievePrimeTable(limit)
			if err != nil {
				return nil, err, dataErr
			}
			return t, nil, dataErr
		}
	}

	t, err := sievePrimeTable(limit)
	return t, err, nil
}

// sievePrimeTable runs the in-memory bit-packed sieve of Eratosthenes.
func sievePrimeTable(limit uint64) (*PrimeTable, error) {
	// bit i of composite tracks whether the odd number 2*i+1 is composite,
	// for every odd number <= limit.
	// i=0 -> 1 (marked composite by convention, it is not prime).
	size := (limit + 1) / 2
	composite := make([]uint64, (size+63)/64)
	if len(composite) == 0 {
		return nil, &ResourceError{Msg: "failed to allocate prime sieve bitmap", SuggestedPrimeTableLimit: limit / 2, SuggestedSieveWorkers: 1}
	}
	composite[0] |= 1

	for i := uint64(1); (2*i+1)*(2*i+1) <= limit; i++ {
		if composite[i>>6]&(1<<(i&63)) != 0 {
			continue
		}
		p := 2*i + 1
		for j := (p*p - 1) / 2; j < size; j += p {
			composite[j>>6] |= 1 << (j & 63)
		}
	}

	primes := make([]uint64, 0, estimatePrimeCount(limit))
	primes = append(primes, 2)
	for i := uint64(1); i < size; i++ {
		if composite[i>>6]&(1<<(i&63)) == 0 {
			primes = append(primes, 2*i+1)
		}
	}
	if len(primes)%2 != 0 {
		primes = primes[:len(primes)-1]
	}
	return splitPrimeTable(primes), nil
}

func estimatePrimeCount(limit uint64) int {
	if limit < 4 {
		return 2
	}
	// rough prime-counting estimate pi(x) ~ x/ln(x), padded generously.
	f := float64(limit)
	ln := 1.0
	for x := f; x > 2.718281828; x /= 2.718281828 {
		ln++
	}
	n := int(f/ln*1.3) + 16
	return n
}

func splitPrimeTable(primes []uint64) *PrimeTable {
	t := &PrimeTable{}
	for i, p := range primes {
		if p < primeTableSplit {
			t.small = append(t.small, uint32(p))
		} else {
			t.large = append(t.large, primes[i:]...)
			break
		}
	}
	return t
}

// loadPrimeTableFile reads a little-endian uint64 ascending prime prefix. It
// returns a usable table (truncated to the first entry <= limit, forced
// even) when the file covers [2, limit], or a non-nil DataError describing
// why it fell back otherwise, including when the file is absent or cannot
// be opened.
func loadPrimeTableFile(path string, limit uint64) (*PrimeTable, *DataError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataError{Msg: "prime table file unreadable: " + err.Error()}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var primes []uint64
	var buf [8]byte
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, &DataError{Msg: "prime table file read error: " + err.Error()}
		}
		p := binary.LittleEndian.Uint64(buf[:])
		if len(primes) > 0 && p <= primes[len(primes)-1] {
			return nil, &DataError{Msg: "prime table file is not strictly ascending"}
		}
		primes = append(primes, p)
		if p >= limit {
			break
		}
	}
	if len(primes) == 0 || primes[len(primes)-1] < limit {
		return nil, &DataError{Msg: "prime table file does not cover the requested limit"}
	}
	// truncate to the first entry <= limit
	n := 0
	for n < len(primes) && primes[n] <= limit {
		n++
	}
	primes = primes[:n]
	if len(primes)%2 != 0 {
		primes = primes[:len(primes)-1]
	}
	return splitPrimeTable(primes), nil
}
