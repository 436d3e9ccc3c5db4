// Package supervisor implements the periodic control loop that resizes
// work branches.
//
// A [Supervisor] owns one goroutine that performs a control pass every
// millisecond: for each registered branch it caps the worker count at the
// configured maximum, scales up toward the backlog, or retires workers
// that have been idle past the branch's idle timeout. The user-visible
// tick callback is gated separately by the tick interval — [Supervisor.Suspend]
// stretches that gate without pausing the control pass itself.
//
// Branches are registered through the narrow [Controller] interface, which
// keeps the supervisor decoupled from the branch implementation and makes
// scaling decisions testable against mocks. Re-registering a branch updates
// its limits in place.
//
// A panic escaping any branch call during a pass is caught, logged with the
// supervisor's identity, and the loop continues.
package supervisor
