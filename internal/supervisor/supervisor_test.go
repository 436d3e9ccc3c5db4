package supervisor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeHby/workspace/internal/errors"
)

// mockController implements Controller for testing.
type mockController struct {
	mu         sync.Mutex
	workers    int
	tasks      int
	idle       int
	addCalls   []int
	delCalls   []int
	panicOnAdd bool
}

func (m *mockController) NumWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers
}

func (m *mockController) NumTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks
}

func (m *mockController) CountIdleWorkers(time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idle > m.workers {
		return m.workers
	}
	return m.idle
}

func (m *mockController) AddWorker(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnAdd {
		m.panicOnAdd = false
		panic("add failed")
	}
	m.addCalls = append(m.addCalls, n)
	m.workers += n
}

func (m *mockController) DelWorker(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.workers {
		n = m.workers
	}
	m.delCalls = append(m.delCalls, n)
	m.workers -= n
}

func (m *mockController) set(workers, tasks, idle int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = workers
	m.tasks = tasks
	m.idle = idle
}

func (m *mockController) snapshot() (workers int, adds, dels []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers, append([]int(nil), m.addCalls...), append([]int(nil), m.delCalls...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	s := New(DefaultIdleTimeout, DefaultTickInterval, nil)
	t.Cleanup(s.Close)
	return s
}

func TestScaleUpTowardBacklog(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	m.set(1, 100, 0)

	if err := s.Supervise(m, 1, 8, 0); err != nil {
		t.Fatalf("Supervise: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 8 }) {
		t.Fatalf("workers = %d, want 8", m.NumWorkers())
	}
}

func TestScaleUpBoundedByDemand(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	m.set(1, 3, 0)

	s.Supervise(m, 1, 8, 0)

	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 3 }) {
		t.Fatalf("workers = %d, want 3 (demand-bounded)", m.NumWorkers())
	}

	// With tasks == workers there is no further demand.
	time.Sleep(20 * time.Millisecond)
	if got := m.NumWorkers(); got != 3 {
		t.Errorf("workers = %d, want stable 3", got)
	}
}

func TestCapAboveMax(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	m.set(10, 0, 0)

	s.Supervise(m, 1, 4, 0)

	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 4 }) {
		t.Fatalf("workers = %d, want 4 (capped)", m.NumWorkers())
	}

	_, _, dels := m.snapshot()
	if len(dels) == 0 || dels[0] != 6 {
		t.Errorf("DelWorker calls = %v, want first call to remove 6", dels)
	}
}

func TestScaleDownAgedIdleWorkers(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	// 6 workers, no tasks, all reported idle past the age bound: the
	// supervisor retires idle workers down to the floor.
	m.set(6, 0, 6)

	s.Supervise(m, 2, 8, 10*time.Millisecond)

	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 2 }) {
		t.Fatalf("workers = %d, want 2", m.NumWorkers())
	}
}

func TestNoScaleDownBelowMin(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	m.set(2, 0, 2)

	s.Supervise(m, 2, 8, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if got := m.NumWorkers(); got != 2 {
		t.Errorf("workers = %d, want 2 (at floor)", got)
	}
}

func TestSuperviseValidatesLimits(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}

	tests := []struct {
		name     string
		min, max int
	}{
		{"negative min", -1, 4},
		{"zero max", 0, 0},
		{"max below min", 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Supervise(m, tt.min, tt.max, 0)
			if !errors.Is(err, errors.ErrInvalidWorkerLimits) {
				t.Errorf("Supervise(%d, %d) = %v, want ErrInvalidWorkerLimits", tt.min, tt.max, err)
			}
		})
	}

	// A fixed-size pool (min == max) is valid.
	if err := s.Supervise(m, 2, 2, 0); err != nil {
		t.Errorf("Supervise(2, 2) = %v, want nil", err)
	}
}

func TestSuperviseIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{}
	m.set(10, 0, 0)

	s.Supervise(m, 1, 2, 0)
	// Re-registering updates limits in place; the branch must converge on
	// the second set, not the first.
	s.Supervise(m, 1, 6, 0)

	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 6 }) {
		t.Fatalf("workers = %d, want 6 (second registration wins)", m.NumWorkers())
	}
}

func TestPanicInBranchCallDoesNotStopLoop(t *testing.T) {
	s := newTestSupervisor(t)
	m := &mockController{panicOnAdd: true}
	m.set(1, 5, 0)

	s.Supervise(m, 1, 8, 0)

	// First AddWorker panics; the loop must recover and keep adjusting.
	if !waitFor(t, 2*time.Second, func() bool { return m.NumWorkers() == 5 }) {
		t.Fatalf("workers = %d, want 5 after recovery", m.NumWorkers())
	}
}

func TestTickCallbackCadence(t *testing.T) {
	s := New(DefaultIdleTimeout, 50*time.Millisecond, nil)
	defer s.Close()

	var ticks atomic.Int64
	s.SetTickCallback(func() { ticks.Add(1) })

	time.Sleep(300 * time.Millisecond)
	got := ticks.Load()
	if got < 3 || got > 8 {
		t.Errorf("ticks in 300ms at 50ms interval = %d, want roughly 6", got)
	}
}

func TestSuspendPausesTicksAndProceedRestores(t *testing.T) {
	s := New(DefaultIdleTimeout, 20*time.Millisecond, nil)
	defer s.Close()

	var ticks atomic.Int64
	s.SetTickCallback(func() { ticks.Add(1) })

	s.Suspend(time.Hour)
	time.Sleep(100 * time.Millisecond)
	suspended := ticks.Load()
	if suspended > 1 {
		t.Errorf("ticks while suspended = %d, want at most 1", suspended)
	}

	s.Proceed()
	if !waitFor(t, time.Second, func() bool { return ticks.Load() > suspended }) {
		t.Error("ticks did not resume after Proceed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(DefaultIdleTimeout, DefaultTickInterval, nil)
	s.Close()
	s.Close() // must not hang or panic
}

func TestValidateLimits(t *testing.T) {
	if err := ValidateLimits(0, 1); err != nil {
		t.Errorf("ValidateLimits(0, 1) = %v, want nil", err)
	}
	if err := ValidateLimits(2, 2); err != nil {
		t.Errorf("ValidateLimits(2, 2) = %v, want nil", err)
	}
	if err := ValidateLimits(3, 2); err == nil {
		t.Error("ValidateLimits(3, 2) = nil, want error")
	}
}

func TestCPUMultipleLimits(t *testing.T) {
	min, max := CPUMultipleLimits(0.5, 2)
	if min < 1 {
		t.Errorf("min = %d, want >= 1 for mult 0.5", min)
	}
	if max < min {
		t.Errorf("max %d < min %d", max, min)
	}
	if max < 2 {
		t.Errorf("max = %d, want >= 2 for mult 2", max)
	}
}
