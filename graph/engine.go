package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/bus"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/metric"
)

// PortRef identifies one port on one block.
type PortRef struct {
	Block string `json:"block" yaml:"block"`
	Port  string `json:"port" yaml:"port"`
}

func (r PortRef) String() string {
	return fmt.Sprintf("%s.%s", r.Block, r.Port)
}

// Connection is a directed edge from an output port to an input port. A
// destination input port has at most one source; an output port may fan out
// to any number of inputs.
type Connection struct {
	Source      PortRef `json:"source" yaml:"source"`
	Destination PortRef `json:"destination" yaml:"destination"`
}

// Engine owns the blocks and the connection table of one processing graph
// and drives data propagation through it.
type Engine struct {
	registry *block.Registry
	events   *bus.Bus
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu          sync.RWMutex
	blocks      map[string]*block.Block
	blockOrder  []string
	connections []Connection

	lifecycleMu sync.Mutex
	running     bool
	started     []*block.Block
}

// NewEngine creates an empty processing graph. The registry is shared with
// whatever builder collaborator instantiates blocks from descriptions; the
// metrics registry may be nil to disable metrics.
func NewEngine(registry *block.Registry, logger *slog.Logger, metrics *metric.Registry) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		registry: registry,
		events:   bus.New(logger),
		logger:   logger,
		blocks:   make(map[string]*block.Block),
	}
	if metrics != nil {
		e.metrics = metrics.Metrics
	}
	return e
}

// Registry returns the block factory registry the engine was created with.
func (e *Engine) Registry() *block.Registry { return e.registry }

// Events returns the engine's event bus. Lifecycle, topology, and block
// fault events are published on it.
func (e *Engine) Events() *bus.Bus { return e.events }

// Block returns the named block, nil when absent.
func (e *Engine) Block(name string) *block.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blocks[name]
}

// Blocks returns all blocks in insertion order.
func (e *Engine) Blocks() []*block.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*block.Block, 0, len(e.blockOrder))
	for _, name := range e.blockOrder {
		result = append(result, e.blocks[name])
	}
	return result
}

// Connections returns the connection table in insertion order.
func (e *Engine) Connections() []Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Connection, len(e.connections))
	copy(result, e.connections)
	return result
}

// AddBlock inserts a block into the graph with no connections. The block
// name must be unique within the graph.
func (e *Engine) AddBlock(ctx context.Context, b *block.Block) error {
	if err := e.checkReentrancy(ctx, "AddBlock"); err != nil {
		return err
	}
	if b == nil {
		return errors.WrapInvalid(errors.ErrNotFound, "Engine", "AddBlock", "block validation")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.blocks[b.Name()]; exists {
		return e.mutationRejected("add-block", errors.WrapInvalid(
			fmt.Errorf("%w: block %q", errors.ErrDuplicateName, b.Name()),
			"Engine", "AddBlock", "duplicate name check"))
	}

	if err := b.Attach(&emitter{engine: e, blk: b}); err != nil {
		return e.mutationRejected("add-block", errors.Wrap(err, "Engine", "AddBlock", "attach"))
	}

	e.blocks[b.Name()] = b
	e.blockOrder = append(e.blockOrder, b.Name())

	e.mutationApplied("add-block")
	if e.metrics != nil {
		e.metrics.ActiveBlocks.Set(float64(len(e.blocks)))
	}
	e.logger.Debug("block added", "block", b.Name(), "type", b.TypeID())
	e.events.Publish(TopicTopology, TopologyEvent{Operation: "add-block", Block: b.Name()})
	return nil
}

// RemoveBlock removes a block and severs every connection it appears in,
// atomically. A running producer block is stopped before it is detached.
func (e *Engine) RemoveBlock(ctx context.Context, name string) error {
	if err := e.checkReentrancy(ctx, "RemoveBlock"); err != nil {
		return err
	}

	e.mu.Lock()
	b, exists := e.blocks[name]
	if !exists {
		e.mu.Unlock()
		return e.mutationRejected("remove-block", errors.WrapInvalid(
			fmt.Errorf("%w: block %q", errors.ErrNotFound, name),
			"Engine", "RemoveBlock", "block lookup"))
	}

	kept := e.connections[:0]
	severed := 0
	for _, c := range e.connections {
		if c.Source.Block == name || c.Destination.Block == name {
			severed++
			continue
		}
		kept = append(kept, c)
	}
	e.connections = kept

	delete(e.blocks, name)
	for i, n := range e.blockOrder {
		if n == name {
			e.blockOrder = append(e.blockOrder[:i:i], e.blockOrder[i+1:]...)
			break
		}
	}
	blockCount := len(e.blocks)
	e.mu.Unlock()

	// Stop a running producer outside the topology lock: its worker may be
	// mid-emission and emission takes the shared lock.
	e.stopIfStarted(b)
	b.Detach()

	e.mutationApplied("remove-block")
	if e.metrics != nil {
		e.metrics.ActiveBlocks.Set(float64(blockCount))
	}
	e.logger.Debug("block removed", "block", name, "severed_connections", severed)
	e.events.Publish(TopicTopology, TopologyEvent{Operation: "remove-block", Block: name})
	return nil
}

// Connect records a directed edge from an output port to an input port. The
// edge is validated in full (endpoint existence, direction, type
// compatibility, fan-in uniqueness, acyclicity) before any state changes. No data is transferred at connect time, but the source port's
// current stream format, when known, is delivered to the destination.
func (e *Engine) Connect(ctx context.Context, srcBlock, srcPort, dstBlock, dstPort string) error {
	if err := e.checkReentrancy(ctx, "Connect"); err != nil {
		return err
	}

	conn := Connection{
		Source:      PortRef{Block: srcBlock, Port: srcPort},
		Destination: PortRef{Block: dstBlock, Port: dstPort},
	}

	e.mu.Lock()
	src, dst, err := e.validateConnection(conn)
	if err != nil {
		e.mu.Unlock()
		return e.mutationRejected("connect", err)
	}

	e.connections = append(e.connections, conn)
	format := src.OutputPort(srcPort).Format()
	e.mu.Unlock()

	e.mutationApplied("connect")
	e.logger.Debug("ports connected", "source", conn.Source, "destination", conn.Destination)
	e.events.Publish(TopicTopology, TopologyEvent{Operation: "connect", Connection: &conn})

	// Announce the current upstream format so the destination can derive
	// its own before any data arrives. Port data is not transferred here.
	if format != nil {
		e.deliverFormat(dst, dstPort, format)
	}
	return nil
}

// Disconnect removes a previously recorded connection. The destination
// port's last value is retained: disconnection does not retroactively
// invalidate already-delivered data.
func (e *Engine) Disconnect(ctx context.Context, srcBlock, srcPort, dstBlock, dstPort string) error {
	if err := e.checkReentrancy(ctx, "Disconnect"); err != nil {
		return err
	}

	conn := Connection{
		Source:      PortRef{Block: srcBlock, Port: srcPort},
		Destination: PortRef{Block: dstBlock, Port: dstPort},
	}

	e.mu.Lock()
	found := false
	for i, c := range e.connections {
		if c == conn {
			e.connections = append(e.connections[:i:i], e.connections[i+1:]...)
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return e.mutationRejected("disconnect", errors.WrapInvalid(
			fmt.Errorf("%w: connection %s -> %s", errors.ErrNotFound, conn.Source, conn.Destination),
			"Engine", "Disconnect", "connection lookup"))
	}

	e.mutationApplied("disconnect")
	e.logger.Debug("ports disconnected", "source", conn.Source, "destination", conn.Destination)
	e.events.Publish(TopicTopology, TopologyEvent{Operation: "disconnect", Connection: &conn})
	return nil
}

// validateConnection checks every connect-time invariant. Caller holds the
// write lock.
func (e *Engine) validateConnection(conn Connection) (src, dst *block.Block, err error) {
	src, exists := e.blocks[conn.Source.Block]
	if !exists {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: block %q", errors.ErrNotFound, conn.Source.Block),
			"Engine", "Connect", "source block lookup")
	}
	dst, exists = e.blocks[conn.Destination.Block]
	if !exists {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: block %q", errors.ErrNotFound, conn.Destination.Block),
			"Engine", "Connect", "destination block lookup")
	}

	out := src.OutputPort(conn.Source.Port)
	if out == nil {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s has no output port %q",
				errors.ErrUnknownPort, conn.Source.Block, conn.Source.Port),
			"Engine", "Connect", "source port lookup")
	}
	in := dst.InputPort(conn.Destination.Port)
	if in == nil {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s has no input port %q",
				errors.ErrUnknownPort, conn.Destination.Block, conn.Destination.Port),
			"Engine", "Connect", "destination port lookup")
	}

	if !block.Compatible(out.Type(), in.Type()) {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s(%s) -> %s(%s)",
				errors.ErrTypeMismatch, conn.Source, out.Type(), conn.Destination, in.Type()),
			"Engine", "Connect", "type compatibility check")
	}

	for _, c := range e.connections {
		if c.Destination == conn.Destination {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s already fed by %s",
					errors.ErrFanInConflict, conn.Destination, c.Source),
				"Engine", "Connect", "fan-in uniqueness check")
		}
	}

	if e.wouldCycle(conn.Source.Block, conn.Destination.Block) {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s -> %s", errors.ErrCycle, conn.Source, conn.Destination),
			"Engine", "Connect", "cycle check")
	}

	return src, dst, nil
}

// wouldCycle reports whether adding an edge srcBlock -> dstBlock would
// create a path back to srcBlock. Self-loops count as cycles. Caller holds
// the write lock.
func (e *Engine) wouldCycle(srcBlock, dstBlock string) bool {
	if srcBlock == dstBlock {
		return true
	}

	// DFS downstream from dstBlock over the existing edges
	visited := make(map[string]bool, len(e.blocks))
	stack := []string{dstBlock}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == srcBlock {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, c := range e.connections {
			if c.Source.Block == current {
				stack = append(stack, c.Destination.Block)
			}
		}
	}
	return false
}

func (e *Engine) mutationApplied(operation string) {
	if e.metrics != nil {
		e.metrics.MutationsTotal.WithLabelValues(operation, "applied").Inc()
	}
}

func (e *Engine) mutationRejected(operation string, err error) error {
	if e.metrics != nil {
		e.metrics.MutationsTotal.WithLabelValues(operation, "rejected").Inc()
	}
	return err
}
