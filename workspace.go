// Package workspace provides an embeddable adaptive worker-pool engine:
// tasks submitted by many producers are dispatched across a dynamically
// sized set of workers, and a supervisor autoscales that set in response
// to load.
//
// # Basic Usage
//
//	wb, err := workspace.New(
//	    workspace.WithWorkerLimits(2, 8),
//	    workspace.WithWaitStrategy(workspace.Blocking),
//	)
//	if err != nil {
//	    return err
//	}
//	defer wb.Close()
//
//	wb.Submit(func() { doWork() })
//	wb.SubmitUrgent(func() { doUrgentWork() })
//	wb.SubmitSequence(first, second, third)
//
//	wb.WaitTasks(10 * time.Second) // quiescence barrier
//
// # Futures
//
// Value-bearing results use the package-level generic form:
//
//	f := workspace.Async(wb, func() (int, error) { return compute(), nil })
//	n, err := f.Get(ctx)
//
// Void tasks that still need completion/failure signaling use
// [DynBranch.SubmitFuture]. Task panics propagate through the future as
// errors; fire-and-forget panics are caught at worker scope and written to
// the error sink instead.
//
// # Ordering
//
// Normal tasks are dequeued FIFO but execute in parallel; urgent tasks
// jump ahead of queued normals with no mutual ordering; a sequence's
// callables execute in submitted order on one worker. No task is ever
// cancelled once it has begun executing.
package workspace

import (
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/DeHby/workspace/internal/branch"
	"github.com/DeHby/workspace/internal/errors"
	"github.com/DeHby/workspace/internal/logging"
	"github.com/DeHby/workspace/internal/supervisor"
)

// DynBranch composes one work branch with one supervisor and exposes the
// public engine surface. All methods are safe for concurrent use.
type DynBranch struct {
	branch *branch.Branch
	sup    *supervisor.Supervisor
	logger *logging.Logger

	closeOnce sync.Once
	ownLogger bool
}

// New creates a DynBranch with the given options. The branch starts with a
// single worker; the supervisor adds workers only when tasks are queued, up
// to the maximum, and does not grow an idle pool to the minimum. Defaults: limits (1, max(2, NumCPU)), Blocking
// strategy, 5 s idle timeout, 1 s tick interval.
func New(opts ...Option) (*DynBranch, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return build(o)
}

// NewCPUMultiple creates a DynBranch whose worker limits are derived from
// the hardware concurrency: min = ceil(cores*minMult),
// max = ceil(cores*maxMult). Any WithWorkerLimits option is overridden.
func NewCPUMultiple(minMult, maxMult float64, opts ...Option) (*DynBranch, error) {
	if minMult < 0 {
		return nil, errors.NewValidationError("min_core_mult", minMult, "must not be negative")
	}
	if maxMult <= 0 {
		return nil, errors.NewValidationError("max_core_mult", maxMult, "must be positive")
	}

	min, max := supervisor.CPUMultipleLimits(minMult, maxMult)
	return New(append(opts, WithWorkerLimits(min, max))...)
}

func build(o *options) (*DynBranch, error) {
	if err := supervisor.ValidateLimits(o.minWorkers, o.maxWorkers); err != nil {
		return nil, err
	}

	var logger *logging.Logger
	var ownLogger bool
	if o.logEnabled {
		var err error
		logger, err = logging.Open(o.logDir, o.logLevel)
		if err != nil {
			return nil, err
		}
		ownLogger = true
	} else {
		logger = logging.Discard()
	}

	br := branch.New(1, o.strategy, logger)
	sup := supervisor.New(o.idleTimeout, o.tickInterval, logger)
	if err := sup.Supervise(br, o.minWorkers, o.maxWorkers, o.idleTimeout); err != nil {
		sup.Close()
		br.Close()
		if ownLogger {
			logger.Close()
		}
		return nil, err
	}

	return &DynBranch{
		branch:    br,
		sup:       sup,
		logger:    logger,
		ownLogger: ownLogger,
	}, nil
}

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// Submit enqueues a fire-and-forget task at the queue tail.
func (d *DynBranch) Submit(fn func()) error {
	return d.branch.Submit(fn)
}

// SubmitUrgent enqueues a task at the queue head, ahead of all queued
// normal tasks.
func (d *DynBranch) SubmitUrgent(fn func()) error {
	return d.branch.SubmitUrgent(fn)
}

// SubmitSequence enqueues the callables as one composite task executing
// them in order on a single worker. At least one callable is required.
func (d *DynBranch) SubmitSequence(fns ...func()) error {
	tasks := make([]branch.Task, len(fns))
	for i, fn := range fns {
		tasks[i] = fn
	}
	return d.branch.SubmitSequence(tasks...)
}

// SubmitFuture enqueues a void task and returns a future that completes
// with Unit on success, the task's error, or the task's recovered panic.
func (d *DynBranch) SubmitFuture(fn func() error) *Future[Unit] {
	return Async(d, unitTask(fn))
}

// SubmitUrgentFuture is SubmitFuture with head-of-queue placement.
func (d *DynBranch) SubmitUrgentFuture(fn func() error) *Future[Unit] {
	return AsyncUrgent(d, unitTask(fn))
}

func unitTask(fn func() error) func() (Unit, error) {
	return func() (Unit, error) {
		if fn == nil {
			return Unit{}, errors.ErrNilTask
		}
		return Unit{}, fn()
	}
}

// Async enqueues a value-bearing task at the queue tail and returns its
// future. Submission failures (e.g. a closed branch) complete the future
// immediately with the error.
func Async[T any](d *DynBranch, fn func() (T, error)) *Future[T] {
	return async(d, fn, false)
}

// AsyncUrgent is Async with head-of-queue placement.
func AsyncUrgent[T any](d *DynBranch, fn func() (T, error)) *Future[T] {
	return async(d, fn, true)
}

func async[T any](d *DynBranch, fn func() (T, error), urgent bool) *Future[T] {
	f := newFuture[T]()

	if fn == nil {
		var zero T
		f.complete(zero, errors.ErrNilTask)
		return f
	}

	task := func() {
		var val T
		var err error
		// The adapter catches its own panic so the failure reaches the
		// consumer through the future rather than the error sink.
		if r := panics.Try(func() { val, err = fn() }); r != nil {
			err = r.AsError()
		}
		f.complete(val, err)
	}

	var serr error
	if urgent {
		serr = d.branch.SubmitUrgent(task)
	} else {
		serr = d.branch.Submit(task)
	}
	if serr != nil {
		var zero T
		f.complete(zero, errors.NewBranchError("submit rejected", serr))
	}
	return f
}

// -----------------------------------------------------------------------------
// Observation and control
// -----------------------------------------------------------------------------

// WaitTasks engages the quiescence barrier: all in-flight and queued tasks
// finish, every worker parks, and the barrier is released again. Returns
// true iff quiescence was reached before the timeout, and false
// immediately if the engine is already closed. Pass DefaultMaxTime for an
// unbounded wait.
func (d *DynBranch) WaitTasks(timeout time.Duration) bool {
	return d.branch.WaitTasks(timeout)
}

// NumWorkers returns the current number of workers.
func (d *DynBranch) NumWorkers() int {
	return d.branch.NumWorkers()
}

// NumTasks returns the number of queued tasks (weakly consistent).
func (d *DynBranch) NumTasks() int {
	return d.branch.NumTasks()
}

// NumBusyWorkers returns the number of workers currently executing a task.
func (d *DynBranch) NumBusyWorkers() int {
	return d.branch.CountBusyWorkers()
}

// Suspend pauses tick-callback firing for up to the given duration.
// Supervision itself keeps running.
func (d *DynBranch) Suspend(timeout time.Duration) {
	d.sup.Suspend(timeout)
}

// Proceed restores the configured tick cadence immediately.
func (d *DynBranch) Proceed() {
	d.sup.Proceed()
}

// SetTickCallback sets a callback invoked at most once per tick interval
// after a supervision pass.
func (d *DynBranch) SetTickCallback(fn func()) {
	d.sup.SetTickCallback(fn)
}

// SetWorkerLimits updates the supervisor's bounds for this branch at
// runtime. A non-positive idleTimeout keeps the supervisor's default.
func (d *DynBranch) SetWorkerLimits(min, max int, idleTimeout time.Duration) error {
	return d.sup.Supervise(d.branch, min, max, idleTimeout)
}

// SetWorkerLimitsCPUMultiple updates the bounds as core-count multiples.
func (d *DynBranch) SetWorkerLimitsCPUMultiple(minMult, maxMult float64) error {
	return d.sup.SuperviseCPUMultiple(d.branch, minMult, maxMult, 0)
}

// Close tears the engine down: the supervisor is stopped and joined first
// so it cannot touch a dying branch, then the branch retires every worker,
// waiting for in-flight tasks to complete. Close is idempotent.
func (d *DynBranch) Close() {
	d.closeOnce.Do(func() {
		d.sup.Close()
		d.branch.Close()
		if d.ownLogger {
			d.logger.Close()
		}
	})
}
