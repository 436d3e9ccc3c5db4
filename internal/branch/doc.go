// Package branch implements the work branch: a pool of worker goroutines
// pulling tasks from a shared double-ended queue, with interchangeable
// idle-wait strategies, a quiescence barrier, and a cooperative worker
// retirement protocol.
//
// # Architecture
//
// A [Branch] owns a worker registry and a task queue. Producers enqueue via
// [Branch.Submit], [Branch.SubmitUrgent], and [Branch.SubmitSequence];
// workers drain the queue head with non-blocking pops. The supervisor
// resizes the pool through [Branch.AddWorker] and [Branch.DelWorker], which
// are deliberately unreachable from outside the module.
//
// All registry mutations and condition-variable predicates go through one
// non-recursive mutex. Counters that workers read outside the lock (the
// lifecycle phase, retirement tickets, barrier counts) are atomics.
//
// # Lifecycle phases
//
// A branch is in exactly one of three phases: running, waiting (the
// quiescence barrier is engaged), or destructing (teardown has begun).
// Worker retirement is orthogonal to the phase: the pending-deletion ticket
// counter is non-zero whenever one or more retirements are outstanding, and
// each retiring worker consumes exactly one ticket.
//
// # Quiescence
//
// [Branch.WaitTasks] drains the queue and parks every worker at a barrier:
// in-flight tasks finish, parked workers cannot pick up new work, and the
// call returns true once every worker has parked within the timeout. The
// release phase always runs, and the caller does not return until every
// released worker has acknowledged the release.
//
// # Teardown
//
// [Branch.Close] issues one retirement ticket per live worker and blocks
// until the registry empties; the last retiring worker signals the
// teardown condition. In-flight tasks always complete — retirement is only
// ever observed between tasks.
package branch
