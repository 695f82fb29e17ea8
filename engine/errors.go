package engine

import "fmt"

// ConfigError reports a problem with a Config that makes the engine
// un-initializable: an empty or malformed pattern, a primorial window too
// small for the requested difficulty, or incompatible primorial offsets.
// Init reports it synchronously, with no partial state left behind;
// StartThreads and AddJob also return it when called before a successful
// Init.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("engine: configuration error: %s", e.Msg)
}

// ResourceError reports an allocation failure. It carries a suggested
// smaller PrimeTableLimit and SieveWorkers count so a caller can retry with
// a lighter configuration. Only the prime-table sieve returns it; the
// modular-inverse table and the sieve workers' factor tables are allocated
// with make, which does not report a failure as an error.
type ResourceError struct {
	Msg                      string
	SuggestedPrimeTableLimit uint64
	SuggestedSieveWorkers    int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("engine: resource exhaustion: %s (try primeTableLimit<=%d, sieveWorkers<=%d)",
		e.Msg, e.SuggestedPrimeTableLimit, e.SuggestedSieveWorkers)
}

// DataError reports invalid content in an external prime-table file. It is
// never fatal: the caller falls back to regenerating the table in memory.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("engine: data error: %s", e.Msg)
}
