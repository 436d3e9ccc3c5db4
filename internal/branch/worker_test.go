package branch

import (
	"testing"
	"time"

	"github.com/DeHby/workspace/internal/logging"
)

func TestRegistryAddRemove(t *testing.T) {
	r := newRegistry()
	logger := logging.Discard()

	r.add(newWorkerRecord(0, logger))
	r.add(newWorkerRecord(1, logger))
	if r.size() != 2 {
		t.Fatalf("size = %d, want 2", r.size())
	}

	r.remove(0)
	if r.size() != 1 {
		t.Fatalf("size after remove = %d, want 1", r.size())
	}
	if r.get(0) != nil {
		t.Error("removed record still retrievable")
	}
	if r.get(1) == nil {
		t.Error("remaining record not retrievable")
	}
}

func TestRegistryRemoveMissingIsNoop(t *testing.T) {
	r := newRegistry()
	r.remove(42)
	if r.size() != 0 {
		t.Errorf("size = %d, want 0", r.size())
	}
}

func TestRegistryIdleCounting(t *testing.T) {
	r := newRegistry()
	logger := logging.Discard()

	young := newWorkerRecord(0, logger)
	old := newWorkerRecord(1, logger)
	old.lastActive = time.Now().Add(-10 * time.Second)
	busy := newWorkerRecord(2, logger)
	busy.markBusy()

	r.add(young)
	r.add(old)
	r.add(busy)

	if got := r.countIdle(5 * time.Second); got != 1 {
		t.Errorf("countIdle(5s) = %d, want 1 (only the aged idle worker)", got)
	}
	if got := r.countIdle(0); got != 2 {
		t.Errorf("countIdle(0) = %d, want 2", got)
	}
	if got := r.countBusy(); got != 1 {
		t.Errorf("countBusy = %d, want 1", got)
	}
}

func TestMarkIdleStampsLastActive(t *testing.T) {
	rec := newWorkerRecord(0, logging.Discard())
	before := rec.lastActive

	rec.markBusy()
	if rec.isIdle() {
		t.Error("record idle after markBusy")
	}

	time.Sleep(time.Millisecond)
	rec.markIdle()
	if !rec.isIdle() {
		t.Error("record busy after markIdle")
	}
	if !rec.lastActive.After(before) {
		t.Error("markIdle did not advance lastActive")
	}
}
