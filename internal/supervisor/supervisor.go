package supervisor

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/DeHby/workspace/internal/errors"
	"github.com/DeHby/workspace/internal/logging"
)

// Default control timings.
const (
	DefaultIdleTimeout  = 5000 * time.Millisecond
	DefaultTickInterval = 1000 * time.Millisecond

	// passInterval is the sleep between control passes. It is independent
	// of the tick interval, which only gates the tick callback.
	passInterval = time.Millisecond
)

// Controller is the branch surface the supervisor drives. It is satisfied
// by *branch.Branch; tests substitute mocks.
type Controller interface {
	NumWorkers() int
	NumTasks() int
	CountIdleWorkers(minIdleAge time.Duration) int
	AddWorker(n int)
	DelWorker(n int)
}

// branchLimits pairs a supervised branch with its scaling bounds.
type branchLimits struct {
	branch      Controller
	min         int
	max         int
	idleTimeout time.Duration
}

// Supervisor periodically inspects registered branches and adjusts their
// worker counts. All methods are safe for concurrent use.
type Supervisor struct {
	logger *logging.Logger

	mu            sync.Mutex
	limits        []branchLimits
	tickInterval  time.Duration // configured cadence
	effectiveTick time.Duration // current gate; stretched by Suspend
	idleTimeout   time.Duration // default for Supervise registrations
	tickCb        func()

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a supervisor and starts its control loop. idleTimeout is the
// default idle-age bound applied when a registration does not carry its
// own; tickInterval gates the tick callback. Non-positive durations fall
// back to the defaults. A nil logger disables logging.
func New(idleTimeout, tickInterval time.Duration, logger *logging.Logger) *Supervisor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Supervisor{
		logger:        logger.Scoped("supervisor"),
		tickInterval:  tickInterval,
		effectiveTick: tickInterval,
		idleTimeout:   idleTimeout,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

// DefaultMaxWorkers returns max(2, hardware concurrency), the default
// upper worker bound.
func DefaultMaxWorkers() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

// ValidateLimits checks a min/max worker pair. max == min is a valid fixed
// pool size.
func ValidateLimits(min, max int) error {
	if min < 0 {
		return errors.NewValidationError("min_workers", min, "must not be negative")
	}
	if max < 1 {
		return errors.NewValidationError("max_workers", max, "must be at least 1")
	}
	if max < min {
		return errors.NewValidationError("max_workers", max, "must not be below min_workers")
	}
	return nil
}

// Supervise registers a branch with the given limits. Registering an
// already-supervised branch updates its limits instead. A non-positive
// idleTimeout uses the supervisor's default.
func (s *Supervisor) Supervise(c Controller, min, max int, idleTimeout time.Duration) error {
	if err := ValidateLimits(min, max); err != nil {
		return errors.NewSupervisorError("branch registration rejected", err)
	}
	if idleTimeout <= 0 {
		idleTimeout = s.idleTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.limits {
		if s.limits[i].branch == c {
			s.limits[i].min = min
			s.limits[i].max = max
			s.limits[i].idleTimeout = idleTimeout
			return nil
		}
	}
	s.limits = append(s.limits, branchLimits{
		branch:      c,
		min:         min,
		max:         max,
		idleTimeout: idleTimeout,
	})
	return nil
}

// SuperviseCPUMultiple registers a branch with limits derived from the
// hardware concurrency: min = ceil(cores*minMult), max = ceil(cores*maxMult).
func (s *Supervisor) SuperviseCPUMultiple(c Controller, minMult, maxMult float64, idleTimeout time.Duration) error {
	min, max := CPUMultipleLimits(minMult, maxMult)
	return s.Supervise(c, min, max, idleTimeout)
}

// CPUMultipleLimits computes worker limits as core-count multiples.
func CPUMultipleLimits(minMult, maxMult float64) (min, max int) {
	cores := runtime.NumCPU()
	if cores < 1 {
		cores = 1
	}
	min = int(math.Ceil(float64(cores) * minMult))
	max = int(math.Ceil(float64(cores) * maxMult))
	return min, max
}

// Suspend stretches the tick-callback gate to timeout, pausing tick firing
// for up to that duration. Control passes keep running.
func (s *Supervisor) Suspend(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effectiveTick = timeout
}

// Proceed restores the configured tick interval immediately.
func (s *Supervisor) Proceed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effectiveTick = s.tickInterval
}

// SetTickCallback sets a callback invoked at most once per tick interval
// after a control pass. A nil callback disables ticking.
func (s *Supervisor) SetTickCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickCb = fn
}

// Close stops the control loop and joins the supervisor goroutine. The
// supervisor must be closed before any branch it supervises. Close is
// idempotent.
func (s *Supervisor) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}

// run is the control loop.
func (s *Supervisor) run() {
	defer close(s.done)

	ticker := time.NewTicker(passInterval)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		s.pass()

		s.mu.Lock()
		gate := s.effectiveTick
		cb := s.tickCb
		s.mu.Unlock()

		if cb != nil && time.Since(lastTick) >= gate {
			lastTick = time.Now()
			cb()
		}
	}
}

// pass runs one control iteration over every registered branch.
func (s *Supervisor) pass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.limits {
		lim := s.limits[i]
		if r := panics.Try(func() { s.adjust(lim) }); r != nil {
			err := errors.NewSupervisorError("control pass failed", r.AsError())
			s.logger.Report(err.Error(), r.Value, r.Stack, "branch_index", i)
		}
	}
}

// adjust applies the cap / scale-up / scale-down rules to one branch.
func (s *Supervisor) adjust(lim branchLimits) {
	workers := lim.branch.NumWorkers()
	tasks := lim.branch.NumTasks()

	// Cap.
	if workers > lim.max {
		lim.branch.DelWorker(workers - lim.max)
		s.logger.Event("capped workers", "removed", workers-lim.max, "max", lim.max)
		return
	}

	// Scale up: queued tasks are unit demand, bounded by the ceiling.
	if tasks > 0 {
		n := lim.max - workers
		if d := tasks - workers; d < n {
			n = d
		}
		if n > 0 {
			lim.branch.AddWorker(n)
			s.logger.Event("scaled up", "added", n, "backlog", tasks)
		}
		return
	}

	// Scale down: retire aged-idle workers above the floor.
	if workers > lim.min {
		idle := lim.branch.CountIdleWorkers(lim.idleTimeout)
		if idle > lim.min {
			lim.branch.DelWorker(idle - lim.min)
			s.logger.Event("scaled down", "removed", idle-lim.min, "min", lim.min)
		}
	}
}
