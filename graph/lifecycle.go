package graph

import (
	"context"
	"time"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
)

// DefaultStopTimeout bounds how long Stop waits for each producer worker.
const DefaultStopTimeout = 5 * time.Second

// Start activates the graph: every block whose strategy is Runnable gets its
// worker started, in block insertion order. If any worker fails to start,
// the ones already started are stopped in reverse order and the engine stays
// stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Start", "state check")
	}

	blocks := e.Blocks()
	var started []*block.Block
	for _, b := range blocks {
		r, ok := b.Strategy().(block.Runnable)
		if !ok {
			continue
		}
		if err := r.Start(ctx, b.Emitter()); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				e.stopRunnable(started[i])
			}
			return errors.Wrap(err, "Engine", "Start", "runnable start")
		}
		e.logger.Info("producer started", "block", b.Name())
		started = append(started, b)
	}

	e.running = true
	e.started = started
	e.logger.Info("graph started", "blocks", len(blocks), "producers", len(started))
	e.events.Publish(TopicLifecycle, LifecycleEvent{Running: true, Blocks: blockNames(blocks)})
	return nil
}

// Stop deactivates the graph: producer workers are stopped in reverse start
// order, then every block is returned to the attached state. In-flight
// propagations finish; no new ones begin once all producers have stopped.
func (e *Engine) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running {
		return errors.WrapInvalid(errors.ErrNotStarted, "Engine", "Stop", "state check")
	}
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	for i := len(e.started) - 1; i >= 0; i-- {
		b := e.started[i]
		r := b.Strategy().(block.Runnable)
		if err := r.Stop(timeout); err != nil {
			e.logger.Warn("producer stop failed", "block", b.Name(), "error", err)
		} else {
			e.logger.Info("producer stopped", "block", b.Name())
		}
	}
	e.started = nil
	e.running = false

	blocks := e.Blocks()
	for _, b := range blocks {
		b.Deactivate()
	}

	e.logger.Info("graph stopped", "blocks", len(blocks))
	e.events.Publish(TopicLifecycle, LifecycleEvent{Running: false, Blocks: blockNames(blocks)})
	return nil
}

// Running reports whether the graph is started.
func (e *Engine) Running() bool {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	return e.running
}

// stopIfStarted stops a block's producer worker if the engine started it.
// Used by RemoveBlock so a removed producer does not keep emitting.
func (e *Engine) stopIfStarted(b *block.Block) {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	for i, s := range e.started {
		if s == b {
			e.started = append(e.started[:i:i], e.started[i+1:]...)
			e.stopRunnable(b)
			return
		}
	}
}

func (e *Engine) stopRunnable(b *block.Block) {
	r, ok := b.Strategy().(block.Runnable)
	if !ok {
		return
	}
	if err := r.Stop(DefaultStopTimeout); err != nil {
		e.logger.Warn("producer stop failed", "block", b.Name(), "error", err)
	}
}

func blockNames(blocks []*block.Block) []string {
	names := make([]string, 0, len(blocks))
	for _, b := range blocks {
		names = append(names, b.Name())
	}
	return names
}
