package engine

import (
	"math/big"

	"golang.org/x/sync/errgroup"
)

// derivedTables holds everything built once from a Config and a PrimeTable:
// the primorial, its modular inverses, and the sieve-size-derived constants
// that separate "dense" from "additional" primes.
type derivedTables struct {
	Primorial       *big.Int
	PrimorialNumber int // number of primes multiplied into Primorial

	// ModularInverses[i-PrimorialNumber] is the inverse of Primorial mod
	// primes.At(i), for i in [PrimorialNumber, nPrimes).
	ModularInverses []uint64

	SieveSize            uint64
	SieveWords           uint64
	FactorMax            uint64
	PrimesIndexThreshold int // smallest index i with primes.At(i) >= FactorMax, rounded down to even

	HalfPattern         []uint64
	PrimorialOffsetDiff []int64 // PrimorialOffsetDiff[j] for j>=1, indexed from 0
}

// buildDerivedTables implements C2: primorial selection, modular inverse
// computation (parallelized across cfg.Threads), and the sieve-size-derived
// constants.
func buildDerivedTables(cfg *Config, primes *PrimeTable) (*derivedTables, error) {
	sieveBits := cfg.SieveBits
	if sieveBits == 0 {
		sieveBits = 25
	}
	sieveIterations := cfg.SieveIterations
	if sieveIterations == 0 {
		sieveIterations = 16
	}
	sieveSize := uint64(1) << sieveBits
	factorMax := sieveIterations * sieveSize

	// L = 2^initialTargetBits / factorMax
	l := new(big.Int).Lsh(big.NewInt(1), uint(cfg.InitialTargetBits))
	l.Quo(l, new(big.Int).SetUint64(factorMax))
	if l.Sign() <= 0 {
		return nil, &ConfigError{Msg: "difficulty too low: the target window cannot fit even a single primorial multiple at this sieve size"}
	}

	primorial := big.NewInt(1)
	primorialNumber := 0
	for primorialNumber < primes.Len() {
		p := primes.At(primorialNumber)
		next := new(big.Int).Mul(primorial, new(big.Int).SetUint64(p))
		if next.Cmp(l) > 0 {
			break
		}
		primorial = next
		primorialNumber++
	}
	if primorialNumber == 0 {
		return nil, &ConfigError{Msg: "difficulty too low: not even the first prime fits the primorial window"}
	}

	thresholdIdx := primes.IndexAtLeast(factorMax)
	if thresholdIdx%2 != 0 {
		thresholdIdx-- // round down to even, per spec
	}
	if thresholdIdx < primorialNumber {
		thresholdIdx = primorialNumber
	}

	nPrimes := primes.Len()
	inverses := make([]uint64, nPrimes-primorialNumber)
	if err := computeModularInversesParallel(cfg.Threads, primorial, primes, primorialNumber, inverses); err != nil {
		return nil, err
	}

	pattern := cfg.Pattern
	diff := make([]int64, 0, len(cfg.PrimorialOffsets))
	sum := int64(patternSum(pattern))
	for j := 1; j < len(cfg.PrimorialOffsets); j++ {
		d := int64(cfg.PrimorialOffsets[j]) - int64(cfg.PrimorialOffsets[j-1]) - sum
		diff = append(diff, d)
	}

	return &derivedTables{
		Primorial:            primorial,
		PrimorialNumber:      primorialNumber,
		ModularInverses:      inverses,
		SieveSize:            sieveSize,
		SieveWords:           sieveSize / 64,
		FactorMax:            factorMax,
		PrimesIndexThreshold: thresholdIdx,
		HalfPattern:          halfPattern(pattern),
		PrimorialOffsetDiff:  diff,
	}, nil
}

// computeModularInversesParallel fills inverses[i-primorialNumber] with the
// multiplicative inverse of primorial mod primes.At(i), for every i in
// [primorialNumber, primes.Len()), partitioning the index range across
// threads goroutines.
func computeModularInversesParallel(threads int, primorial *big.Int, primes *PrimeTable, primorialNumber int, inverses []uint64) error {
	n := len(inverses)
	if n == 0 {
		return nil
	}
	if threads < 1 {
		threads = 1
	}
	chunk := (n + threads - 1) / threads

	var g errgroup.Group

	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			pBig := new(big.Int)
			inv := new(big.Int)
			for off := start; off < end; off++ {
				i := primorialNumber + off
				p := primes.At(i)
				pBig.SetUint64(p)
				rem := new(big.Int).Mod(primorial, pBig)
				if rem.Sign() == 0 {
					// primorial is a multiple of this prime: cannot happen
					// by construction (primorial only multiplies the first
					// primorialNumber primes), but guard against a
					// malformed table rather than panicking.
					return &ConfigError{Msg: "primorial and sieve prime table overlap"}
				}
				if inv.ModInverse(rem, pBig) == nil {
					return &ConfigError{Msg: "no modular inverse exists, prime table is malformed"}
				}
				inverses[off] = inv.Uint64()
			}
			return nil
		})
	}
	return g.Wait()
}
