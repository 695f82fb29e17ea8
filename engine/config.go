package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds the engine's full, immutable-after-init configuration. It
// mirrors the "Configuration" block of the design one field at a time; the
// auto-selected fields (SieveBits, SieveIterations, SieveWorkers,
// PrimeTableLimit) may be left zero to let Init choose them.
type Config struct {
	// Threads is the number of worker goroutines pulling tasks.
	Threads int

	// Pattern is the sequence of even offsets [o0=0, o1, ..., o(k-1)].
	Pattern []uint64
	// PatternMin[i] says whether position i must be prime for a Result to
	// count at all. PatternMin[0] must be true.
	PatternMin []bool

	// PrimeCountTarget is k, the full constellation length.
	PrimeCountTarget int
	// PrimeCountMin is the minimum accepted tuple length, <= PrimeCountTarget.
	PrimeCountMin int

	// InitialBits is the network difficulty driving table sizes.
	InitialBits uint64
	// InitialTargetBits is the width in bits of the per-job search window.
	InitialTargetBits uint64

	// PrimeTableLimit upper-bounds the small-prime table. Zero auto-selects
	// a limit from InitialTargetBits alone (2^25, or 2^28 above 40 bits).
	PrimeTableLimit uint64
	// PrimeTableFile optionally names an on-disk little-endian uint64 prime
	// prefix to load instead of sieving in memory.
	PrimeTableFile string

	// SieveBits, SieveIterations, SieveWorkers: zero means auto-select
	// (25 bits, 16 iterations, 1..min(Threads-1, len(PrimorialOffsets), 64)
	// workers respectively). The auto-selected bit count is always 25; it
	// does not vary with the other settings.
	SieveBits       uint64
	SieveIterations uint64
	SieveWorkers    int

	// PrimorialOffsets gives each sieve worker's constant base offset. Must
	// be at least SieveWorkers long once SieveWorkers is resolved.
	PrimorialOffsets []uint64

	// QueueCapacity bounds the presieve/task/done-info channels. Zero
	// selects a default proportional to Threads.
	QueueCapacity int

	// KeepStats, when true, preserves tuple counters across a Clear/Init
	// cycle instead of zeroing them.
	KeepStats bool

	// Logger receives structured diagnostics. A nil Logger is replaced with
	// zap.NewNop() so the engine never needs a nil check at call sites.
	Logger *zap.Logger
}

func (c *Config) resolveLogger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Validate checks the structural invariants of Config that do not depend on
// the derived prime/primorial tables (those are checked during Init, which
// can fail with a ConfigError of its own once the tables are known). It
// returns every violation found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Threads < 1 {
		errs = append(errs, &ConfigError{Msg: "threads must be >= 1"})
	}
	if len(c.Pattern) < 2 {
		errs = append(errs, &ConfigError{Msg: "pattern must have at least 2 elements"})
		return errs // nothing else below is checkable without a pattern
	}
	if c.Pattern[0] != 0 {
		errs = append(errs, &ConfigError{Msg: "pattern[0] must be 0"})
	}
	for i, o := range c.Pattern {
		if o%2 != 0 {
			errs = append(errs, &ConfigError{Msg: fmt.Sprintf("pattern[%d]=%d is odd, all offsets must be even", i, o)})
		}
	}
	if len(c.PatternMin) != len(c.Pattern) {
		errs = append(errs, &ConfigError{Msg: "patternMin must be the same length as pattern"})
	} else if !c.PatternMin[0] {
		errs = append(errs, &ConfigError{Msg: "patternMin[0] must be true"})
	}
	if c.PrimeCountTarget != len(c.Pattern) {
		errs = append(errs, &ConfigError{Msg: "primeCountTarget must equal len(pattern)"})
	}
	if c.PrimeCountMin < 1 || c.PrimeCountMin > c.PrimeCountTarget {
		errs = append(errs, &ConfigError{Msg: "primeCountMin must be in [1, primeCountTarget]"})
	}
	if len(c.PrimorialOffsets) == 0 {
		errs = append(errs, &ConfigError{Msg: "primorialOffsets must not be empty"})
	}
	if c.SieveWorkers > 0 && len(c.PrimorialOffsets) < c.SieveWorkers {
		errs = append(errs, &ConfigError{Msg: "primorialOffsets must have at least sieveWorkers entries"})
	}
	return errs
}

// halfPattern returns pattern[i]/2 for every offset.
func halfPattern(pattern []uint64) []uint64 {
	half := make([]uint64, len(pattern))
	for i, o := range pattern {
		half[i] = o / 2
	}
	return half
}

// patternSum returns the sum of every offset in the pattern.
func patternSum(pattern []uint64) uint64 {
	var s uint64
	for _, o := range pattern {
		s += o
	}
	return s
}
