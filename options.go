package workspace

import (
	"time"

	"github.com/DeHby/workspace/internal/branch"
	"github.com/DeHby/workspace/internal/supervisor"
)

// WaitStrategy selects how idle workers wait for tasks.
type WaitStrategy = branch.WaitStrategy

// Wait strategies.
const (
	// LowLatency busy-waits with cooperative yields.
	LowLatency = branch.LowLatency
	// Balance busy-waits up to a spin threshold, then sleeps briefly.
	Balance = branch.Balance
	// Blocking parks idle workers on a condition variable (the default).
	Blocking = branch.Blocking
)

// Defaults applied by New.
const (
	// DefaultMaxTime is the practically-infinite timeout for unbounded waits.
	DefaultMaxTime = branch.DefaultMaxTime
	// DefaultIdleTimeout is the default idle-age bound for scale-down.
	DefaultIdleTimeout = supervisor.DefaultIdleTimeout
	// DefaultTickInterval is the default tick-callback cadence.
	DefaultTickInterval = supervisor.DefaultTickInterval
)

// options collects construction parameters for a DynBranch.
type options struct {
	minWorkers   int
	maxWorkers   int
	strategy     WaitStrategy
	idleTimeout  time.Duration
	tickInterval time.Duration
	logDir       string
	logLevel     string
	logEnabled   bool
}

func defaultOptions() *options {
	return &options{
		minWorkers:   1,
		maxWorkers:   supervisor.DefaultMaxWorkers(),
		strategy:     Blocking,
		idleTimeout:  DefaultIdleTimeout,
		tickInterval: DefaultTickInterval,
	}
}

// Option configures a DynBranch.
type Option func(*options)

// WithWorkerLimits sets the minimum and maximum worker counts the
// supervisor maintains. min == max fixes the pool size.
func WithWorkerLimits(min, max int) Option {
	return func(o *options) {
		o.minWorkers = min
		o.maxWorkers = max
	}
}

// WithWaitStrategy sets the branch's idle-wait strategy.
func WithWaitStrategy(s WaitStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithIdleTimeout sets how long a worker must be idle before the
// supervisor may retire it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithTickInterval sets the supervisor's tick-callback cadence.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.tickInterval = d
	}
}

// WithLogDir enables the JSON error sink, writing workspace.log under dir
// at the given level (DEBUG, INFO, WARN, ERROR). Without this option,
// failures are discarded.
func WithLogDir(dir, level string) Option {
	return func(o *options) {
		o.logDir = dir
		o.logLevel = level
		o.logEnabled = true
	}
}
