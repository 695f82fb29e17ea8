package engine

import "math/big"

// Job is the unit of work handed to the engine by the outer driver: a
// target interval's inclusive lower bound, tagged with an opaque id. The
// engine never interprets the id; it is only echoed back on Result and used
// to recognize stale work.
type Job struct {
	ID                uint64
	Target            *big.Int
	ClearPreviousJobs bool
}

// Result is a confirmed (to the engine's Fermat-test confidence) tuple hit.
// PrimorialFactor and PrimorialOffset let a driver reconstruct every tuple
// member without re-deriving the sieve arithmetic: pattern is a gap
// sequence, so member f of the tuple is Result + sum(pattern[1..f]), not
// Result + pattern[f].
type Result struct {
	JobID           uint64
	ThreadID        int
	Result          *big.Int
	PrimeCount      int
	PrimorialNumber int
	PrimorialFactor uint64
	PrimorialOffset uint64
}
