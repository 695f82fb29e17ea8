// Package engine implements a prime-constellation proof-of-work search
// core: given a pattern of offsets and a per-job target, it sieves a window
// above each primorial multiple of the target and Fermat-tests the survivors,
// reporting every candidate that reaches the configured minimum tuple length.
//
// The package owns no network or wire protocol; a driver feeds it Jobs and
// drains Results (see cmd/constellminer for a minimal exerciser).
package engine

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine is the whole searching core: C1-C8 wired together behind a small
// public API (Init, StartThreads, AddJob, GetResults, ...). It is safe for
// concurrent use by multiple callers once started.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	primes     *PrimeTable
	primesDiag *DataError // non-nil if the on-disk prime table fell back to sieving
	derived    *derivedTables
	patternBig []*big.Int

	sieves           []*sieveState
	additionalGrowMu sync.Mutex

	works            [nWorks]*work
	currentWorkIndex int

	presieveTasks chan task
	tasks         chan task
	tasksDone     chan taskDoneInfo

	jobs *jobQueue

	counters *tupleCounters

	resultsMu sync.Mutex
	results   []Result

	nRemainingCheckTasksTarget int

	inited  bool
	running bool

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// New returns a zero-value Engine; Init must be called before use.
func New() *Engine {
	return &Engine{}
}

// Init validates cfg, builds the prime table, primorial, modular inverses
// and sieve-worker state, and returns whether initialization succeeded along
// with any non-fatal diagnostics (e.g. a prime-table file that fell back to
// in-memory sieving). It never starts worker goroutines; call StartThreads
// for that. Calling Init again re-derives everything from scratch, keeping
// tuple-counter stats only if cfg.KeepStats is true.
func (e *Engine) Init(cfg Config) (inited bool, diags []string) {
	logger := cfg.resolveLogger()

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("config rejected", zap.Error(err))
			diags = append(diags, err.Error())
		}
		return false, diags
	}

	primeTableLimit := cfg.PrimeTableLimit
	if primeTableLimit == 0 {
		primeTableLimit = defaultPrimeTableLimit(cfg.InitialTargetBits)
	}
	primes, err, dataErr := buildPrimeTable(primeTableLimit, cfg.PrimeTableFile)
	if dataErr != nil {
		logger.Warn("prime table file fell back to in-memory sieve", zap.Error(dataErr))
		diags = append(diags, dataErr.Error())
	}
	if err != nil {
		logger.Error("failed to build prime table", zap.Error(err))
		diags = append(diags, err.Error())
		return false, diags
	}

	sieveWorkers := cfg.SieveWorkers
	if sieveWorkers == 0 {
		sieveWorkers = defaultSieveWorkers(cfg.Threads, len(cfg.PrimorialOffsets))
	}
	cfg.SieveWorkers = sieveWorkers
	if cfg.SieveBits == 0 {
		cfg.SieveBits = 25
	}
	if cfg.SieveIterations == 0 {
		cfg.SieveIterations = 16
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 64 * cfg.Threads
	}

	derived, err := buildDerivedTables(&cfg, primes)
	if err != nil {
		logger.Error("failed to build primorial tables", zap.Error(err))
		diags = append(diags, err.Error())
		return false, diags
	}

	additionalPrimeCount := primes.Len() - derived.PrimesIndexThreshold
	sieves := make([]*sieveState, sieveWorkers)
	for i := range sieves {
		sieves[i] = newSieveState(i, len(cfg.Pattern), derived.PrimesIndexThreshold, derived.SieveWords, cfg.SieveIterations, additionalPrimeCount)
	}

	patternBig := make([]*big.Int, len(cfg.Pattern))
	for i, o := range cfg.Pattern {
		patternBig[i] = new(big.Int).SetUint64(o)
	}

	counters := e.counters
	if counters == nil {
		counters = newTupleCounters(len(cfg.Pattern))
	} else {
		counters.resize(len(cfg.Pattern), cfg.KeepStats)
	}

	var works [nWorks]*work
	for i := range works {
		works[i] = newWork(i)
	}

	e.cfg = cfg
	e.logger = logger
	e.primes = primes
	e.primesDiag = dataErr
	e.derived = derived
	e.patternBig = patternBig
	e.sieves = sieves
	e.works = works
	e.currentWorkIndex = 0
	e.jobs = newJobQueue()
	e.counters = counters
	e.results = nil
	e.nRemainingCheckTasksTarget = 8 * cfg.Threads
	e.presieveTasks = make(chan task, cfg.QueueCapacity)
	e.tasks = make(chan task, cfg.QueueCapacity)
	e.tasksDone = make(chan taskDoneInfo, cfg.QueueCapacity)
	e.inited = true

	logger.Info("engine initialized",
		zap.Int("primeCount", primes.Len()),
		zap.Int("primorialNumber", derived.PrimorialNumber),
		zap.Int("sieveWorkers", sieveWorkers),
		zap.Uint64("sieveBits", cfg.SieveBits),
	)
	return true, diags
}

func defaultPrimeTableLimit(initialTargetBits uint64) uint64 {
	limit := uint64(1) << 25
	if initialTargetBits > 40 {
		limit = uint64(1) << 28
	}
	return limit
}

func defaultSieveWorkers(threads, primorialOffsets int) int {
	n := threads - 1
	if n < 1 {
		n = 1
	}
	if primorialOffsets > 0 && n > primorialOffsets {
		n = primorialOffsets
	}
	if n > 64 {
		n = 64
	}
	return n
}

// StartThreads launches cfg.Threads worker goroutines plus the scheduler
// goroutine. It is an error to call StartThreads before a successful Init,
// or while already running.
func (e *Engine) StartThreads() error {
	if !e.inited {
		return &ConfigError{Msg: "StartThreads called before a successful Init"}
	}
	if e.running {
		return &ConfigError{Msg: "StartThreads called while already running"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	e.ctx = gctx
	e.cancel = cancel
	e.group = group
	e.running = true
	e.stopOnce = sync.Once{}

	for t := 0; t < e.cfg.Threads; t++ {
		threadID := t
		group.Go(func() error {
			e.workerLoop(gctx, threadID)
			return nil
		})
	}
	group.Go(func() error {
		e.schedulerLoop(gctx)
		return nil
	})

	e.logger.Info("engine started", zap.Int("threads", e.cfg.Threads))
	return nil
}

// StopThreads cancels every worker and the scheduler, then waits for them to
// exit. It is safe to call more than once.
func (e *Engine) StopThreads() error {
	if !e.running {
		return nil
	}
	e.stopOnce.Do(func() {
		e.cancel()
		e.jobs.close()
	})
	err := e.group.Wait()
	e.running = false
	e.logger.Info("engine stopped")
	return err
}

// Clear resets the engine to its pre-Init state, preserving tuple-counter
// stats only if cfg.KeepStats was set on the last Init.
func (e *Engine) Clear() {
	if e.running {
		_ = e.StopThreads()
	}
	if e.counters != nil {
		e.counters.reset(e.cfg.KeepStats)
	}
	e.inited = false
	e.primes = nil
	e.derived = nil
	e.sieves = nil
	e.results = nil
}

// AddJob enqueues j on the unbounded job list. If j.ClearPreviousJobs is
// set, every in-flight work slot is marked stale as soon as the scheduler
// reaches it (existing in-progress candidates are abandoned, not corrupted).
func (e *Engine) AddJob(j Job) error {
	if !e.inited {
		return &ConfigError{Msg: "AddJob called before a successful Init"}
	}
	e.jobs.push(j)
	return nil
}

// AvailableJobs returns the number of jobs still waiting to be picked up by
// the scheduler.
func (e *Engine) AvailableJobs() int {
	if e.jobs == nil {
		return 0
	}
	return e.jobs.len()
}

// InvalidateWork marks every current work slot stale, causing in-flight
// presieve/sieve/check tasks for them to abandon as soon as they next poll
// work.current. It does not touch queued jobs.
func (e *Engine) InvalidateWork() {
	for _, w := range e.works {
		w.current.Store(false)
	}
}

// GetResults drains and returns every Result accumulated since the last
// call.
func (e *Engine) GetResults() []Result {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	out := e.results
	e.results = nil
	return out
}

// GetTupleCounts returns a snapshot of the k+1-length tuple counter vector.
func (e *Engine) GetTupleCounts() []uint64 {
	return e.counters.snapshot()
}

// HasAcceptedPatterns reports whether the engine's active pattern is a
// prefix of some pattern in patterns, i.e. whether a network-side change of
// accepted patterns still admits what this engine is currently searching
// for.
func (e *Engine) HasAcceptedPatterns(patterns [][]uint64) bool {
	k := len(e.cfg.Pattern)
	for _, p := range patterns {
		if len(p) < k {
			continue
		}
		match := true
		for i := 0; i < k; i++ {
			if p[i] != e.cfg.Pattern[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// emitResult appends r to the results buffer and logs it at info level: a
// constellation hit is rare enough to always be worth a log line.
func (e *Engine) emitResult(r Result) {
	e.logger.Info("candidate accepted",
		zap.Uint64("jobID", r.JobID),
		zap.Int("primeCount", r.PrimeCount),
		zap.Uint64("primorialFactor", r.PrimorialFactor),
	)
	e.resultsMu.Lock()
	e.results = append(e.results, r)
	e.resultsMu.Unlock()
}

// emitCheckTask enqueues a Check task for up to maxCandidatesPerCheckTask
// sieve-survivor offsets, bumping the owning work slot's outstanding-check
// counter before the task can possibly be picked up and completed.
func (e *Engine) emitCheckTask(w *work, sieveID int, factorStart uint64, offsets []uint32) {
	cp := make([]uint32, len(offsets))
	copy(cp, offsets)
	w.nRemainingCheckTasks.Add(1)
	t := task{
		kind:          taskCheck,
		workIndex:     w.idx,
		offsetID:      sieveID,
		factorStart:   factorStart,
		factorOffsets: cp,
	}
	if !e.pushTask(e.ctx, t) {
		w.nRemainingCheckTasks.Add(-1)
	}
}

// pushTask sends t on the tasks channel, returning false if ctx was
// cancelled first (in which case the send did not happen).
func (e *Engine) pushTask(ctx context.Context, t task) bool {
	select {
	case e.tasks <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// pushPresieve sends t on the presieveTasks channel, returning false if ctx
// was cancelled first.
func (e *Engine) pushPresieve(ctx context.Context, t task) bool {
	select {
	case e.presieveTasks <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// reportDone sends info on tasksDone, returning false if ctx was cancelled
// first.
func (e *Engine) reportDone(ctx context.Context, info taskDoneInfo) bool {
	select {
	case e.tasksDone <- info:
		return true
	case <-ctx.Done():
		return false
	}
}

// workerLoop is one of cfg.Threads identical workers: it prefers presieve
// tasks (the scheduler's phase barriers depend on draining them promptly)
// over the general task queue, and dispatches every task kind to its C4-C6
// handler.
func (e *Engine) workerLoop(ctx context.Context, threadID int) {
	for {
		var t task
		select {
		case t = <-e.presieveTasks:
		default:
			select {
			case t = <-e.presieveTasks:
			case t = <-e.tasks:
			case <-ctx.Done():
				return
			}
		}

		switch t.kind {
		case taskDummy:
			e.reportDone(ctx, taskDoneInfo{kind: taskDummy, workIndex: t.workIndex})

		case taskPresieve:
			e.doPresieveTask(e.works[t.workIndex], t.firstPrimeIndex, t.lastPrimeIndex)
			e.reportDone(ctx, taskDoneInfo{kind: taskPresieve, workIndex: t.workIndex, additional: t.additional})

		case taskSieve:
			w := e.works[t.workIndex]
			sv := e.sieves[t.sieveID]
			if e.doSieveTask(w, sv, t.iteration) {
				e.pushTask(ctx, task{kind: taskSieve, workIndex: t.workIndex, sieveID: t.sieveID, iteration: t.iteration + 1})
			} else {
				e.reportDone(ctx, taskDoneInfo{kind: taskSieve, workIndex: t.workIndex})
			}

		case taskCheck:
			w := e.works[t.workIndex]
			e.doCheckTask(threadID, w, t)
			w.nRemainingCheckTasks.Add(-1)
			w.signalCheckDone()
		}

		if ctx.Err() != nil {
			return
		}
	}
}
