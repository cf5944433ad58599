package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

type ctxKey struct{}

// inPropagation reports whether ctx belongs to a running propagation chain.
func inPropagation(ctx context.Context) bool {
	return ctx != nil && ctx.Value(ctxKey{}) != nil
}

// checkReentrancy rejects topology mutations issued from inside a
// propagation callback. Strategies queue such requests with Exec.Defer.
func (e *Engine) checkReentrancy(ctx context.Context, method string) error {
	if inPropagation(ctx) {
		return errors.WrapInvalid(errors.ErrReentrantMutation, "Engine", method, "reentrancy check")
	}
	return nil
}

// propagation tracks one root-to-leaves chain: the context marker that
// blocks reentrant mutations and the deferred-mutation queue drained after
// the chain unwinds.
type propagation struct {
	engine   *Engine
	ctx      context.Context
	deferred []func() error
}

func (e *Engine) newPropagation(ctx context.Context) *propagation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &propagation{
		engine: e,
		ctx:    context.WithValue(ctx, ctxKey{}, struct{}{}),
	}
}

// drain runs the deferred mutations queued during the chain, in order.
// Mutations queued by a deferred mutation run in the same drain.
func (p *propagation) drain() {
	for i := 0; i < len(p.deferred); i++ {
		if err := p.deferred[i](); err != nil {
			p.engine.logger.Warn("deferred mutation failed", "error", err)
		}
	}
	p.deferred = nil
}

// exec is the per-block execution context handed to strategies during a
// delivery. Emissions from inside the callback continue the same chain.
type exec struct {
	prop *propagation
	blk  *block.Block
}

func (x *exec) Emit(port string, value any) error {
	if err := x.blk.RecordEmit(port, value); err != nil {
		return err
	}
	x.prop.engine.fanOut(x.prop, x.blk, port, value)
	return nil
}

func (x *exec) SetFormat(port string, format *media.Info) error {
	if err := x.blk.RecordFormat(port, format); err != nil {
		return err
	}
	x.prop.engine.fanOutFormat(x.blk, port, format)
	return nil
}

func (x *exec) Defer(fn func() error) {
	x.prop.deferred = append(x.prop.deferred, fn)
}

func (x *exec) Logger() *slog.Logger { return x.blk.Logger() }

// emitter is the long-lived Emitter bound to a block at attach time. Each
// Emit starts a fresh propagation chain rooted at the emitting port, so
// producer workers re-enter the graph through it safely.
type emitter struct {
	engine *Engine
	blk    *block.Block
}

func (em *emitter) Emit(port string, value any) error {
	if err := em.blk.RecordEmit(port, value); err != nil {
		return err
	}
	prop := em.engine.newPropagation(context.Background())
	em.engine.fanOut(prop, em.blk, port, value)
	prop.drain()
	if em.engine.metrics != nil {
		em.engine.metrics.PropagationsTotal.WithLabelValues(em.blk.Name()).Inc()
	}
	return nil
}

func (em *emitter) SetFormat(port string, format *media.Info) error {
	if err := em.blk.RecordFormat(port, format); err != nil {
		return err
	}
	em.engine.fanOutFormat(em.blk, port, format)
	return nil
}

// Inject writes a value into a port from outside the graph and runs the
// resulting propagation to completion before returning. An input port
// receives the value as a normal delivery; an output port emits it to the
// port's fan-out. A fault in the injected block itself is returned to the
// caller; downstream faults are isolated and reported as events.
func (e *Engine) Inject(ctx context.Context, blockName, portName string, value any) error {
	if inPropagation(ctx) {
		return errors.WrapInvalid(errors.ErrReentrantMutation, "Engine", "Inject", "reentrancy check")
	}

	e.mu.RLock()
	b, exists := e.blocks[blockName]
	e.mu.RUnlock()
	if !exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: block %q", errors.ErrNotFound, blockName),
			"Engine", "Inject", "block lookup")
	}

	prop := e.newPropagation(ctx)
	defer prop.drain()

	if b.OutputPort(portName) != nil {
		if err := b.RecordEmit(portName, value); err != nil {
			return errors.Wrap(err, "Engine", "Inject", "emission")
		}
		e.fanOut(prop, b, portName, value)
	} else {
		if err := e.deliver(prop, b, portName, value); err != nil {
			return errors.Wrap(err, "Engine", "Inject", "delivery")
		}
	}

	if e.metrics != nil {
		e.metrics.PropagationsTotal.WithLabelValues(blockName).Inc()
	}
	return nil
}

// fanOut delivers a value emitted on src's output port to every connected
// input, depth-first in connection insertion order. The fan-out is
// snapshotted under the shared lock and the lock released before any
// strategy runs.
func (e *Engine) fanOut(prop *propagation, src *block.Block, port string, value any) {
	targets := e.fanOutTargets(src.Name(), port)
	for _, t := range targets {
		if err := e.deliver(prop, t.blk, t.port, value); err != nil {
			e.reportFault(t.blk.Name(), t.port, err)
		}
	}
}

// fanOutFormat announces a new output-port format to every connected input.
func (e *Engine) fanOutFormat(src *block.Block, port string, format *media.Info) {
	targets := e.fanOutTargets(src.Name(), port)
	for _, t := range targets {
		e.deliverFormat(t.blk, t.port, format)
	}
}

type fanOutTarget struct {
	blk  *block.Block
	port string
}

func (e *Engine) fanOutTargets(srcBlock, srcPort string) []fanOutTarget {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var targets []fanOutTarget
	for _, c := range e.connections {
		if c.Source.Block == srcBlock && c.Source.Port == srcPort {
			if dst, ok := e.blocks[c.Destination.Block]; ok {
				targets = append(targets, fanOutTarget{blk: dst, port: c.Destination.Port})
			}
		}
	}
	return targets
}

// deliver hands a value to one block's input port and runs its strategy,
// isolating panics so one faulting block cannot take down its siblings.
// Port type violations are programmer errors and are re-raised.
func (e *Engine) deliver(prop *propagation, b *block.Block, port string, value any) (err error) {
	if e.metrics != nil {
		e.metrics.DeliveriesTotal.WithLabelValues(b.Name()).Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			if block.IsTypeViolation(r) {
				panic(r)
			}
			err = errors.WrapFault(
				fmt.Errorf("panic in block %q: %v", b.Name(), r),
				b.Name(), "deliver", "strategy execution")
		}
	}()

	start := time.Now()
	err = b.Deliver(prop.ctx, &exec{prop: prop, blk: b}, port, value)
	if e.metrics != nil {
		e.metrics.ComputeDuration.WithLabelValues(b.TypeID()).Observe(time.Since(start).Seconds())
	}
	return err
}

// deliverFormat hands an upstream format to one block's input port. Format
// hooks fault-isolate the same way data deliveries do.
func (e *Engine) deliverFormat(b *block.Block, port string, format *media.Info) {
	prop := e.newPropagation(context.Background())
	defer prop.drain()

	func() {
		defer func() {
			if r := recover(); r != nil {
				if block.IsTypeViolation(r) {
					panic(r)
				}
				e.reportFault(b.Name(), port, errors.WrapFault(
					fmt.Errorf("panic in block %q: %v", b.Name(), r),
					b.Name(), "deliverFormat", "format hook"))
			}
		}()
		if err := b.DeliverFormat(&exec{prop: prop, blk: b}, port, format); err != nil {
			e.reportFault(b.Name(), port, err)
		}
	}()
}

// reportFault logs an isolated block fault, counts it, and publishes it on
// the event bus. Propagation continues with the remaining fan-out.
func (e *Engine) reportFault(blockName, port string, err error) {
	if e.metrics != nil {
		e.metrics.BlockFaultsTotal.WithLabelValues(blockName).Inc()
	}
	e.logger.Error("block fault isolated", "block", blockName, "port", port, "error", err)
	e.events.Publish(TopicBlockFault, BlockFaultEvent{Block: blockName, Port: port, Err: err})
}
