package branch

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/DeHby/workspace/internal/errors"
	"github.com/DeHby/workspace/internal/logging"
	"github.com/DeHby/workspace/internal/taskqueue"
)

// Task is an opaque, one-shot unit of work. Argument binding and result
// plumbing happen before a task reaches the branch.
type Task func()

// DefaultMaxTime is the practically-infinite timeout used when a caller
// does not care about bounding a wait.
const DefaultMaxTime = time.Duration(math.MaxInt64)

// Lifecycle phases. A branch is in exactly one phase at a time; worker
// retirement is tracked separately by the ticket counter.
const (
	phaseRunning int32 = iota
	phaseWaiting
	phaseDestructing
)

// job is the internal queue element. It receives the executing worker's
// logger so composite tasks can report per-element failures with the
// worker's identity.
type job func(wl *logging.Logger)

// Branch owns a worker registry and a task queue, runs the worker loops,
// and drives quiescence and retirement. All exported methods are safe for
// concurrent use.
//
// AddWorker and DelWorker are exported for the supervisor; the package
// lives under internal/, so they are not reachable by library consumers.
type Branch struct {
	strategy WaitStrategy
	logger   *logging.Logger

	queue *taskqueue.Queue[job]

	nextID atomic.Uint64

	// phase and the counters below are read by workers without the lock.
	phase            atomic.Int32
	pendingDeletions atomic.Int64
	idleWorkers      atomic.Int64
	resumedWorkers   atomic.Int64

	mu      sync.Mutex
	workers *registry
	wg      sync.WaitGroup

	taskCond   *sync.Cond // blocking workers awaiting work or a state change
	idleCond   *sync.Cond // WaitTasks awaiting full barrier occupancy
	resumeCond *sync.Cond // parked workers awaiting barrier release
	ackCond    *sync.Cond // WaitTasks awaiting release acknowledgements
	retireCond *sync.Cond // DelWorker/Close awaiting ticket consumption
}

// New creates a branch with the given initial worker count and wait
// strategy, spawning the workers synchronously. Counts below 1 are clamped
// up to 1. A nil logger disables logging.
func New(workers int, strategy WaitStrategy, logger *logging.Logger) *Branch {
	if logger == nil {
		logger = logging.Discard()
	}

	b := &Branch{
		strategy: strategy,
		logger:   logger.Scoped("branch"),
		queue:    taskqueue.New[job](),
		workers:  newRegistry(),
	}
	b.taskCond = sync.NewCond(&b.mu)
	b.idleCond = sync.NewCond(&b.mu)
	b.resumeCond = sync.NewCond(&b.mu)
	b.ackCond = sync.NewCond(&b.mu)
	b.retireCond = sync.NewCond(&b.mu)

	if workers < 1 {
		workers = 1
	}
	b.AddWorker(workers)
	return b
}

// Strategy returns the branch's wait strategy.
func (b *Branch) Strategy() WaitStrategy {
	return b.strategy
}

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// Submit enqueues a fire-and-forget task at the queue tail. A panic in the
// task is caught at worker scope and written to the error sink with the
// worker's id.
func (b *Branch) Submit(fn Task) error {
	if fn == nil {
		return errors.ErrNilTask
	}
	return b.enqueue(func(*logging.Logger) { fn() }, false)
}

// SubmitUrgent enqueues a task at the queue head, ahead of every queued
// normal task. There is no ordering guarantee among urgent tasks.
func (b *Branch) SubmitUrgent(fn Task) error {
	if fn == nil {
		return errors.ErrNilTask
	}
	return b.enqueue(func(*logging.Logger) { fn() }, true)
}

// SubmitSequence enqueues the callables as one composite tail-task that
// executes them in the given order on a single worker. Each element runs in
// its own recovery scope: a panicking element is logged and the remaining
// elements still run.
func (b *Branch) SubmitSequence(fns ...Task) error {
	if len(fns) == 0 {
		return errors.ErrEmptySequence
	}
	for _, fn := range fns {
		if fn == nil {
			return errors.ErrNilTask
		}
	}

	seq := make([]Task, len(fns))
	copy(seq, fns)

	return b.enqueue(func(wl *logging.Logger) {
		for i, fn := range seq {
			if r := panics.Try(fn); r != nil {
				wl.Report("sequence element panicked", r.Value, r.Stack, "element", i)
			}
		}
	}, false)
}

// enqueue validates branch state, pushes the job, and wakes one blocking
// worker.
func (b *Branch) enqueue(j job, urgent bool) error {
	if b.phase.Load() == phaseDestructing {
		return errors.ErrBranchClosed
	}

	if urgent {
		b.queue.PushFront(j)
	} else {
		b.queue.PushBack(j)
	}

	if b.strategy == Blocking {
		// Signal under the lock so a worker between its predicate check
		// and its wait cannot miss the wake-up.
		b.mu.Lock()
		b.taskCond.Signal()
		b.mu.Unlock()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Observers
// -----------------------------------------------------------------------------

// NumWorkers returns the number of live workers.
func (b *Branch) NumWorkers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.workers.size()
}

// NumTasks returns the number of queued tasks. The value is a weakly
// consistent snapshot.
func (b *Branch) NumTasks() int {
	return b.queue.Len()
}

// CountIdleWorkers returns the number of workers that have been idle for at
// least minIdleAge.
func (b *Branch) CountIdleWorkers(minIdleAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.workers.countIdle(minIdleAge)
}

// CountBusyWorkers returns the number of workers currently executing a task.
func (b *Branch) CountBusyWorkers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.workers.countBusy()
}

// -----------------------------------------------------------------------------
// Scaling (supervisor-facing)
// -----------------------------------------------------------------------------

// AddWorker atomically assigns n new worker ids, registers them, and spawns
// their goroutines.
func (b *Branch) AddWorker(n int) {
	if n <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < n; i++ {
		id := b.nextID.Add(1) - 1
		b.workers.add(newWorkerRecord(id, b.logger))
		b.wg.Add(1)
		go b.work(id)
		b.logger.Event("worker spawned", "worker_id", id, "workers", b.workers.size())
	}
}

// DelWorker issues min(n, NumWorkers()) retirement tickets and blocks until
// every ticket has been consumed, guaranteeing the caller observes the new
// worker count synchronously. Which workers retire is unspecified; workers
// are fungible, and no in-flight task is ever interrupted.
func (b *Branch) DelWorker(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size := b.workers.size(); n > size {
		n = size
	}
	if n <= 0 {
		return
	}

	b.pendingDeletions.Add(int64(n))
	if b.strategy == Blocking {
		b.taskCond.Broadcast()
	}

	for b.pendingDeletions.Load() > 0 {
		b.retireCond.Wait()
	}
}

// -----------------------------------------------------------------------------
// Quiescence
// -----------------------------------------------------------------------------

// WaitTasks engages the quiescence barrier: it lets in-flight tasks finish,
// drains the queue, and parks every worker. It returns true iff every
// worker reached the barrier before the timeout. The release phase runs
// either way, and WaitTasks does not return until every released worker has
// acknowledged the release.
//
// Returns false immediately if teardown has already begun.
func (b *Branch) WaitTasks(timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The swap happens with the lock held: no worker can park before the
	// barrier counters are reset, because parking requires the lock.
	if !b.phase.CompareAndSwap(phaseRunning, phaseWaiting) {
		return false
	}

	b.idleWorkers.Store(0)
	if b.strategy == Blocking {
		b.taskCond.Broadcast()
	}

	// The >= is deliberate: the supervisor may retire workers while we
	// wait, shrinking the registry below the parked count.
	ok := b.waitWithTimeout(b.idleCond, timeout, func() bool {
		return b.idleWorkers.Load() >= int64(b.workers.size())
	})

	// Release. A concurrent Close may have moved the phase to destructing;
	// never overwrite that.
	b.phase.CompareAndSwap(phaseWaiting, phaseRunning)
	b.resumeCond.Broadcast()

	for b.resumedWorkers.Load() < b.idleWorkers.Load() &&
		b.phase.Load() != phaseDestructing {
		b.ackCond.Wait()
	}
	b.resumedWorkers.Store(0)

	return ok
}

// waitWithTimeout blocks on cond until pred holds or the timeout expires.
// The caller must hold b.mu; pred is evaluated with b.mu held.
func (b *Branch) waitWithTimeout(cond *sync.Cond, timeout time.Duration, pred func() bool) bool {
	if pred() {
		return true
	}

	expired := false
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		expired = true
		b.mu.Unlock()
		cond.Broadcast()
	})
	defer timer.Stop()

	for !pred() {
		if expired {
			return false
		}
		cond.Wait()
	}
	return true
}

// -----------------------------------------------------------------------------
// Teardown
// -----------------------------------------------------------------------------

// Close begins teardown: the branch stops accepting submissions, every
// worker retires after finishing its current task, and Close blocks until
// the registry is empty and all worker goroutines have been joined.
// Close is idempotent.
func (b *Branch) Close() {
	b.mu.Lock()
	alreadyClosing := b.phase.Swap(phaseDestructing) == phaseDestructing
	if !alreadyClosing {
		b.pendingDeletions.Store(int64(b.workers.size()))
		b.taskCond.Broadcast()
		b.resumeCond.Broadcast()
		b.idleCond.Broadcast()
		b.ackCond.Broadcast()
	}
	for b.workers.size() > 0 {
		b.retireCond.Wait()
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// -----------------------------------------------------------------------------
// Worker loop
// -----------------------------------------------------------------------------

// work is the dispatch loop run by every worker goroutine.
func (b *Branch) work(id uint64) {
	defer b.wg.Done()

	spin := 0
	for {
		// Retirement check: claim a ticket if any are outstanding.
		if b.phase.Load() == phaseDestructing || b.pendingDeletions.Load() > 0 {
			if b.claimRetirement(id) {
				return
			}
		}

		// Dispatch: drain the queue ahead of parking so the barrier only
		// completes once all queued work is done.
		if j, ok := b.queue.TryPop(); ok {
			b.markBusy(id)
			b.runJob(id, j)
			spin = 0
			b.markIdle(id)
			continue
		}

		// Barrier park.
		if b.phase.Load() == phaseWaiting {
			b.parkAtBarrier()
			continue
		}

		// Idle wait.
		b.waitForTask(&spin)
	}
}

// claimRetirement attempts to claim one retirement ticket. On success the
// worker is deregistered and its goroutine must return.
func (b *Branch) claimRetirement(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pendingDeletions.Load() <= 0 {
		return false
	}

	b.pendingDeletions.Add(-1)
	b.workers.remove(id)
	b.logger.Event("worker retired", "worker_id", id, "workers", b.workers.size())

	// The registry shrank: the barrier predicate may now hold, and
	// DelWorker/Close may be unblocked.
	b.idleCond.Broadcast()
	b.retireCond.Broadcast()
	return true
}

// parkAtBarrier registers this worker at the quiescence barrier, waits for
// release, and acknowledges it.
func (b *Branch) parkAtBarrier() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idleWorkers.Add(1)
	b.idleCond.Broadcast()

	for b.phase.Load() == phaseWaiting {
		b.resumeCond.Wait()
	}

	b.resumedWorkers.Add(1)
	b.ackCond.Broadcast()
}

// waitForTask applies the branch's wait strategy for one idle iteration.
func (b *Branch) waitForTask(spin *int) {
	switch b.strategy {
	case LowLatency:
		runtime.Gosched()

	case Balance:
		if *spin < maxSpinCount {
			*spin++
			runtime.Gosched()
		} else {
			time.Sleep(balanceSleep)
		}

	case Blocking:
		b.mu.Lock()
		for !(b.queue.Len() > 0 || b.stateChanged()) {
			b.taskCond.Wait()
		}
		b.mu.Unlock()
	}
}

// stateChanged reports whether a blocking worker has a reason to wake other
// than available work: outstanding retirements, an engaged barrier, or
// teardown.
func (b *Branch) stateChanged() bool {
	return b.pendingDeletions.Load() > 0 || b.phase.Load() != phaseRunning
}

// runJob executes one queue element under a worker-scope recovery. Panics
// escaping the job are written to the error sink with the worker's id;
// future-bearing and sequence jobs catch their own failures first, so the
// worker-scope catch is the backstop for fire-and-forget tasks.
func (b *Branch) runJob(id uint64, j job) {
	var wl *logging.Logger
	b.mu.Lock()
	if rec := b.workers.get(id); rec != nil {
		wl = rec.logger
	}
	b.mu.Unlock()
	if wl == nil {
		wl = b.logger.Worker(id)
	}

	if r := panics.Try(func() { j(wl) }); r != nil {
		wl.Report("task panicked", r.Value, r.Stack)
	}
}

func (b *Branch) markBusy(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.workers.get(id); rec != nil {
		rec.markBusy()
	}
}

func (b *Branch) markIdle(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.workers.get(id); rec != nil {
		rec.markIdle()
	}
}
