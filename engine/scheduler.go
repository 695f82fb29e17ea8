package engine

import (
	"context"

	"go.uber.org/zap"
)

// schedulerLoop implements C7: pop a job, partition its prime range into
// Presieve tasks, drive the two-phase presieve/sieve barrier per sieve
// worker, then drain Check tasks down to an adaptively chosen target before
// advancing the work-slot ring. It runs as its own goroutine for the
// engine's lifetime.
func (e *Engine) schedulerLoop(ctx context.Context) {
	for {
		j, ok := e.jobs.pop()
		if !ok || ctx.Err() != nil {
			return
		}
		if err := e.runJobCycle(ctx, j); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("job cycle aborted", zap.Error(err))
		}
	}
}

// runJobCycle runs one full job through the work-slot ring: step numbers in
// comments match the per-job algorithm.
func (e *Engine) runJobCycle(ctx context.Context, j Job) error {
	// 1. Optionally invalidate every slot still in flight.
	if j.ClearPreviousJobs {
		e.InvalidateWork()
	}

	wIdx := e.currentWorkIndex
	w := e.works[wIdx]
	e.waitChecksDrained(ctx, w, 0)

	pms := primorialMultipleStart(j.Target, e.derived.Primorial)
	w.reset(j, pms)
	for _, sv := range e.sieves {
		sv.resetForJob()
	}

	// 2-3. Partition [primorialNumber, nPrimes) into threads*8 Presieve
	// tasks, split between the dense ("normal") range and the additional
	// range, and push them (plus a dummy wake-up per task) onto the queues.
	normal, additional := e.makePresieveTasks(wIdx)
	for _, t := range append(append([]task{}, normal...), additional...) {
		if !e.pushPresieve(ctx, t) {
			return ctx.Err()
		}
		if !e.pushTask(ctx, task{kind: taskDummy, workIndex: wIdx}) {
			return ctx.Err()
		}
	}

	normalWant, additionalWant := len(normal), len(additional)
	sieveWant := len(e.sieves)
	normalDone, additionalDone, sieveDone := 0, 0, 0
	minQueueLen := -1

	recvUntil := func(done func() bool) error {
		for !done() {
			if n := len(e.tasks); minQueueLen < 0 || n < minQueueLen {
				minQueueLen = n
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case info := <-e.tasksDone:
				switch info.kind {
				case taskPresieve:
					if info.additional {
						additionalDone++
					} else {
						normalDone++
					}
				case taskSieve:
					sieveDone++
				}
			}
		}
		return nil
	}

	// 4. Wait for every "normal" (dense-range) presieve task to finish.
	if err := recvUntil(func() bool { return normalDone >= normalWant }); err != nil {
		return err
	}

	// 5. Lock every sieve worker's presieveLock and enqueue its iteration-0
	// sieve task; iteration 0 blocks on the lock until step 6 releases it, so
	// it never reads additionalCounts[0] while additional factors are still
	// being deposited.
	for _, sv := range e.sieves {
		sv.presieveLock.Lock()
	}
	for _, sv := range e.sieves {
		if !e.pushTask(ctx, task{kind: taskSieve, workIndex: wIdx, sieveID: sv.id, iteration: 0}) {
			return ctx.Err()
		}
	}

	// 6. Wait for every additional-range presieve task, then release the
	// locks so the blocked iteration-0 sieve tasks can proceed.
	if err := recvUntil(func() bool { return additionalDone >= additionalWant }); err != nil {
		return err
	}
	for _, sv := range e.sieves {
		sv.presieveLock.Unlock()
	}

	// 7. Wait for every sieve worker to finish its final iteration. Reset the
	// queue-depth watermark here so adaptCheckTarget reflects the depth
	// observed while sieving/checking ran concurrently, not the earlier
	// presieve phase.
	minQueueLen = -1
	if err := recvUntil(func() bool { return sieveDone >= sieveWant }); err != nil {
		return err
	}

	// 8. Adapt the check-task back-pressure target from the observed minimum
	// task-queue depth during sieving.
	e.adaptCheckTarget(minQueueLen, w)

	// 9. Drain this slot's outstanding check tasks down to the new target.
	e.waitChecksDrained(ctx, w, int64(e.nRemainingCheckTasksTarget))

	// 10. Advance the ring and make sure the next slot starts from empty.
	e.currentWorkIndex = (wIdx + 1) % nWorks
	e.waitChecksDrained(ctx, e.works[e.currentWorkIndex], 0)

	return nil
}

// waitChecksDrained blocks until w's outstanding check-task count is at or
// below target, waking on every check-task completion signal instead of
// polling.
func (e *Engine) waitChecksDrained(ctx context.Context, w *work, target int64) {
	for w.nRemainingCheckTasks.Load() > target {
		select {
		case <-ctx.Done():
			return
		case <-w.checkSignal:
		}
	}
}

// makePresieveTasks partitions [primorialNumber, nPrimes) into
// threads*8 roughly-equal-width Presieve tasks, proportioned between the
// dense ("normal", index < threshold) and additional (index >= threshold)
// ranges so neither is starved when one range is much narrower than the
// other.
func (e *Engine) makePresieveTasks(workIndex int) (normal, additional []task) {
	lo := e.derived.PrimorialNumber
	threshold := e.derived.PrimesIndexThreshold
	hi := e.primes.Len()

	normal = partitionRange(lo, threshold, tasksFor(e.cfg.Threads, threshold-lo, hi-lo), workIndex, false)
	additional = partitionRange(threshold, hi, tasksFor(e.cfg.Threads, hi-threshold, hi-lo), workIndex, true)
	return normal, additional
}

// tasksFor proportions total = threads*8 tasks across partLen out of a
// whole range of length wholeLen, always returning at least 1 when partLen
// is non-empty.
func tasksFor(threads, partLen, wholeLen int) int {
	if partLen <= 0 {
		return 0
	}
	total := threads * 8
	if wholeLen == 0 {
		return 1
	}
	n := total * partLen / wholeLen
	if n < 1 {
		n = 1
	}
	return n
}

// partitionRange splits [lo, hi) into n contiguous, roughly-equal chunks,
// each carried as a Presieve task.
func partitionRange(lo, hi, n, workIndex int, additional bool) []task {
	if n <= 0 || hi <= lo {
		return nil
	}
	total := hi - lo
	chunk := (total + n - 1) / n
	tasks := make([]task, 0, n)
	for start := lo; start < hi; start += chunk {
		end := start + chunk
		if end > hi {
			end = hi
		}
		tasks = append(tasks, task{
			kind:            taskPresieve,
			workIndex:       workIndex,
			firstPrimeIndex: start,
			lastPrimeIndex:  end,
			additional:      additional,
		})
	}
	return tasks
}

// adaptCheckTarget is a direct translation of the adaptive back-pressure
// rule: when the task queue ran nearly empty during sieving the target
// grows (the sieve is outpacing the checkers), and when it stayed deep the
// target shrinks, always clamped to leave headroom in the done-info queue.
func (e *Engine) adaptCheckTarget(minQueueLen int, w *work) {
	threads := e.cfg.Threads
	remaining := w.nRemainingCheckTasks.Load()
	target := e.nRemainingCheckTasksTarget
	margin := int64(4 * threads)

	switch {
	case remaining <= int64(target)-margin:
		if minQueueLen <= 0 {
			target += 4 * threads * len(e.sieves)
		} else {
			update := int(remaining) - minQueueLen + 8*threads
			target = (target + update) / 2
		}
	case minQueueLen > 4*threads:
		update := int(remaining) - minQueueLen + 10*threads
		target = (target + update) / 2
	}

	if capLimit := cap(e.tasksDone) - 9*threads; target > capLimit {
		target = capLimit
	}
	if target < threads {
		target = threads
	}
	e.nRemainingCheckTasksTarget = target
}
