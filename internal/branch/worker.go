package branch

import (
	"time"

	"github.com/DeHby/workspace/internal/logging"
)

// workerRecord tracks one live worker. The busy flag and last-active
// timestamp are mutated only under the branch lock; the branch's WaitGroup
// is the join handle for the worker goroutine.
type workerRecord struct {
	id         uint64
	busy       bool
	lastActive time.Time
	logger     *logging.Logger
}

func newWorkerRecord(id uint64, logger *logging.Logger) *workerRecord {
	return &workerRecord{
		id:         id,
		lastActive: time.Now(),
		logger:     logger.Worker(id),
	}
}

func (w *workerRecord) markBusy() {
	w.busy = true
}

// markIdle records the busy-to-idle transition and stamps the worker's
// last-active time, which the supervisor reads to age out idle workers.
func (w *workerRecord) markIdle() {
	w.busy = false
	w.lastActive = time.Now()
}

func (w *workerRecord) isIdle() bool {
	return !w.busy
}

// registry is the identified set of live workers. It has no lock of its
// own: every mutation and every read happens under the owning branch's
// mutex.
type registry struct {
	records map[uint64]*workerRecord
}

func newRegistry() *registry {
	return &registry{records: make(map[uint64]*workerRecord)}
}

func (r *registry) add(rec *workerRecord) {
	r.records[rec.id] = rec
}

func (r *registry) remove(id uint64) {
	delete(r.records, id)
}

func (r *registry) get(id uint64) *workerRecord {
	return r.records[id]
}

func (r *registry) size() int {
	return len(r.records)
}

// countIdle returns the number of workers that are idle and have been idle
// for at least minIdleAge.
func (r *registry) countIdle(minIdleAge time.Duration) int {
	now := time.Now()
	count := 0
	for _, rec := range r.records {
		if rec.isIdle() && now.Sub(rec.lastActive) >= minIdleAge {
			count++
		}
	}
	return count
}

func (r *registry) countBusy() int {
	count := 0
	for _, rec := range r.records {
		if !rec.isIdle() {
			count++
		}
	}
	return count
}
