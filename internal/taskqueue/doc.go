// Package taskqueue provides the shared double-ended task queue consumed by
// the work branch.
//
// The queue is unbounded and safe for concurrent use. Normal tasks are
// appended at the tail, urgent tasks are prepended at the head, and workers
// drain from the head with a non-blocking [Queue.TryPop]. [Queue.Len] is a
// weakly consistent snapshot: it is exact at the instant the internal lock
// is held, but may be stale by the time the caller acts on it, which is
// acceptable for the supervisor's backlog estimates.
//
// The queue carries opaque values and performs no scheduling of its own;
// blocking, wake-ups, and worker bookkeeping all belong to the branch.
package taskqueue
