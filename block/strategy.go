package block

import (
	"context"
	"log/slog"
	"time"

	"github.com/Steve19802/workbench/media"
)

// Emitter lets a strategy push values and format changes out of its block's
// output ports. The engine binds an emitter to every block when the block is
// attached to a graph; producer workers keep using it between callbacks.
type Emitter interface {
	// Emit sends a value out of the named output port. Delivery to every
	// connected input is synchronous and depth-first on the calling
	// goroutine.
	Emit(port string, value any) error

	// SetFormat updates the stream format of an output port and announces
	// it to every connected input.
	SetFormat(port string, format *media.Info) error
}

// Exec is the execution context handed to a strategy while the engine is
// delivering data to it. It is only valid for the duration of the callback.
type Exec interface {
	Emitter

	// Defer queues fn to run after the outermost propagation has fully
	// unwound. Topology mutations are disallowed inside a callback and
	// must go through Defer instead.
	Defer(fn func() error)

	// Logger returns the engine logger scoped to the receiving block.
	Logger() *slog.Logger
}

// Strategy is the pure computation contract of a block: it is invoked
// synchronously whenever a value arrives on one of the block's input ports
// and may emit on any output port, any number of times, before returning.
//
// A strategy must not block indefinitely and must not mutate the graph
// topology from inside the callback; long-running work hands off to a worker
// and re-enters the graph through the block's Emitter.
type Strategy interface {
	OnInputReceived(ctx context.Context, exec Exec, port string, value any) error
}

// FormatWatcher is implemented by strategies that react to upstream format
// changes, typically to derive and publish their own output format.
type FormatWatcher interface {
	OnFormatChanged(exec Exec, port string, format *media.Info) error
}

// PropertyWatcher is implemented by strategies that recompute derived state
// when a property changes, without requiring new input data. The emitter is
// nil while the block is not attached to a graph.
type PropertyWatcher interface {
	OnPropertyChanged(em Emitter, name string, value any) error
}

// Runnable is implemented by producer strategies that generate data on their
// own, from a worker goroutine, re-entering the graph through the emitter.
// The engine starts runnables when the graph starts and stops them in
// reverse start order.
type Runnable interface {
	Start(ctx context.Context, em Emitter) error
	Stop(timeout time.Duration) error
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(ctx context.Context, exec Exec, port string, value any) error

// OnInputReceived implements Strategy.
func (f StrategyFunc) OnInputReceived(ctx context.Context, exec Exec, port string, value any) error {
	return f(ctx, exec, port, value)
}
