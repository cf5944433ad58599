// Package graph implements the processing-graph engine: it owns the blocks
// and the connection table, validates and applies topology mutations
// atomically, and drives synchronous depth-first data propagation whenever a
// block emits on an output port.
//
// # Consistency model
//
// The block map and connection table are the only cross-cutting shared
// state. Topology mutations (AddBlock, RemoveBlock, Connect, Disconnect)
// take the engine's exclusive lock; every propagation step snapshots the
// fan-out of the emitting port under the shared lock, so no step ever
// observes a half-applied topology change. All mutations are atomic from
// the caller's perspective: they are fully validated before any state is
// touched, so a rejected mutation leaves the graph exactly as it was.
//
// Feedback cycles are rejected at connect time, since a push-propagation
// model has no defined semantics for unbounded recursion through a cycle.
// This bounds propagation depth by the graph's longest path.
//
// Mutating the topology from inside a propagation callback is disallowed
// and fails with ErrReentrantMutation; strategies queue such requests with
// Exec.Defer, and the engine drains the queue after the outermost
// propagation has fully unwound.
package graph
