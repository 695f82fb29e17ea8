// Command constellminer is a thin, in-process exerciser for the engine
// package: it starts a search over a synthetic job source and prints every
// accepted candidate it finds. It speaks no network or wire protocol; a real
// miner would sit between a pool/node client and this engine.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"math/big"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/agbru/constellminer/engine"
)

func main() {
	threadsPtr := flag.Int("threads", runtime.NumCPU(), "number of sieve/check worker goroutines")
	targetBitsPtr := flag.Int("targetbits", 304, "bit width of the per-job search window")
	initialBitsPtr := flag.Int("initialbits", 1600, "nominal network difficulty in bits, drives table sizing")
	countTargetPtr := flag.Int("count", 6, "constellation length to search for")
	countMinPtr := flag.Int("countmin", 4, "minimum accepted tuple length")
	jobsPtr := flag.Int("jobs", 5, "number of synthetic jobs to run before exiting")
	verbosePtr := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	logCfg := zap.NewProductionConfig()
	if *verbosePtr {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	pattern, patternMin := sixTuplePattern(*countTargetPtr)

	cfg := engine.Config{
		Threads:           *threadsPtr,
		Pattern:           pattern,
		PatternMin:        patternMin,
		PrimeCountTarget:  *countTargetPtr,
		PrimeCountMin:     *countMinPtr,
		InitialBits:       uint64(*initialBitsPtr),
		InitialTargetBits: uint64(*targetBitsPtr),
		PrimorialOffsets:  primorialOffsets(*threadsPtr),
		Logger:            logger,
	}

	e := engine.New()
	inited, diags := e.Init(cfg)
	for _, d := range diags {
		logger.Warn("init diagnostic", zap.String("detail", d))
	}
	if !inited {
		logger.Fatal("engine failed to initialize")
	}

	if err := e.StartThreads(); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}
	defer e.StopThreads()

	found := 0
	for jobID := 0; jobID < *jobsPtr; jobID++ {
		target, err := randomOddTarget(*targetBitsPtr)
		if err != nil {
			logger.Fatal("failed to generate synthetic target", zap.Error(err))
		}
		if err := e.AddJob(engine.Job{ID: uint64(jobID + 1), Target: target, ClearPreviousJobs: jobID > 0}); err != nil {
			logger.Fatal("failed to add job", zap.Error(err))
		}

		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			results := e.GetResults()
			for _, r := range results {
				found++
				fmt.Printf("job=%d thread=%d primeCount=%d result=%s\n", r.JobID, r.ThreadID, r.PrimeCount, r.Result.String())
			}
			if e.AvailableJobs() == 0 {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	counts := e.GetTupleCounts()
	logger.Info("search complete", zap.Int("acceptedResults", found), zap.Uint64s("tupleCounts", counts))
}

// sixTuplePattern returns a gap sequence shaped like a common narrow prime
// constellation (a "sexy prime" chain extended to k members): cumulative
// absolute offsets 0, 4, 6, 10, 12, 16, 22, 24, expressed as the gap between
// each position and the previous one, since pattern is a gap sequence (tuple
// member f sits at n + sum(pattern[1..f]), not n + pattern[f]).
// patternMin[0] is always true; every later position is optional, letting
// the engine report partial tuples down to PrimeCountMin.
func sixTuplePattern(k int) ([]uint64, []bool) {
	absolute := []uint64{0, 4, 6, 10, 12, 16, 22, 24}
	pattern := make([]uint64, k)
	patternMin := make([]bool, k)
	prev := uint64(0)
	for i := 0; i < k; i++ {
		var abs uint64
		if i < len(absolute) {
			abs = absolute[i]
		} else {
			abs = absolute[len(absolute)-1] + uint64(2*(i-len(absolute)+1))
		}
		if i == 0 {
			pattern[i] = 0
		} else {
			pattern[i] = abs - prev
		}
		prev = abs
		patternMin[i] = i == 0
	}
	return pattern, patternMin
}

// primorialOffsets gives each sieve worker a distinct constant base offset
// so their sieved windows do not overlap; the spacing is arbitrary but must
// stay even and well clear of the pattern span.
func primorialOffsets(workers int) []uint64 {
	n := workers
	if n < 1 {
		n = 1
	}
	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i] = uint64(i) * 1_000_000
	}
	return offsets
}

// randomOddTarget returns a random odd integer with exactly bits significant
// bits, a stand-in for a real network-derived search window lower bound.
func randomOddTarget(bits int) (*big.Int, error) {
	buf := make([]byte, (bits+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(buf)
	n.SetBit(n, bits-1, 1)
	n.SetBit(n, 0, 1)
	return n, nil
}
