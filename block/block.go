package block

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// Block is a named processing unit owning ordered input and output ports,
// a set of independently observable properties, and a computation strategy.
// Blocks never hold references to other blocks; all routing happens through
// the graph's connection table.
type Block struct {
	name     string
	typeID   string
	schema   Schema
	strategy Strategy
	logger   *slog.Logger
	notifier *Notifier

	inputs    []*Port
	outputs   []*Port
	inputIdx  map[string]*Port
	outputIdx map[string]*Port

	mu        sync.Mutex
	state     State
	emitter   Emitter
	propOrder []string
	props     map[string]any
}

// New constructs a block from a schema. Ports and properties are fixed from
// this point on; only property values and connections change at runtime.
func New(name, typeID string, schema Schema, strategy Strategy, logger *slog.Logger) (*Block, error) {
	if name == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty block name", errors.ErrSchema),
			"Block", "New", "name validation")
	}
	if strategy == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: block %q has no strategy", errors.ErrSchema, name),
			"Block", "New", "strategy validation")
	}
	if err := schema.Validate(); err != nil {
		return nil, errors.Wrap(err, "Block", "New", "schema validation")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Block{
		name:      name,
		typeID:    typeID,
		schema:    schema,
		strategy:  strategy,
		logger:    logger.With("block", name),
		notifier:  NewNotifier(name, logger),
		inputIdx:  make(map[string]*Port, len(schema.Inputs)),
		outputIdx: make(map[string]*Port, len(schema.Outputs)),
		props:     make(map[string]any, len(schema.Properties)),
		state:     StateConstructed,
	}

	for _, spec := range schema.Inputs {
		p := &Port{name: spec.Name, direction: DirectionInput, typeTag: spec.Type, owner: b}
		b.inputs = append(b.inputs, p)
		b.inputIdx[spec.Name] = p
	}
	for _, spec := range schema.Outputs {
		p := &Port{name: spec.Name, direction: DirectionOutput, typeTag: spec.Type, owner: b}
		b.outputs = append(b.outputs, p)
		b.outputIdx[spec.Name] = p
	}
	for _, spec := range schema.Properties {
		b.propOrder = append(b.propOrder, spec.Name)
		b.props[spec.Name] = spec.Default
	}

	return b, nil
}

// Name returns the block name, unique within its graph.
func (b *Block) Name() string { return b.name }

// TypeID returns the factory type identifier the block was created from.
func (b *Block) TypeID() string { return b.typeID }

// Schema returns the schema the block was constructed from.
func (b *Block) Schema() Schema { return b.schema }

// Strategy returns the block's computation strategy.
func (b *Block) Strategy() Strategy { return b.strategy }

// Notifier returns the block's property notification layer.
func (b *Block) Notifier() *Notifier { return b.notifier }

// Logger returns the block-scoped logger.
func (b *Block) Logger() *slog.Logger { return b.logger }

// State returns the block's current lifecycle state.
func (b *Block) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// InputPorts returns the input ports in declaration order.
func (b *Block) InputPorts() []*Port {
	result := make([]*Port, len(b.inputs))
	copy(result, b.inputs)
	return result
}

// OutputPorts returns the output ports in declaration order.
func (b *Block) OutputPorts() []*Port {
	result := make([]*Port, len(b.outputs))
	copy(result, b.outputs)
	return result
}

// InputPort returns the named input port, nil when absent.
func (b *Block) InputPort(name string) *Port { return b.inputIdx[name] }

// OutputPort returns the named output port, nil when absent.
func (b *Block) OutputPort(name string) *Port { return b.outputIdx[name] }

// Attach marks the block as part of a graph and binds the engine's emitter.
// Called by the engine when the block is added.
func (b *Block) Attach(em Emitter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateDetached {
		return errors.WrapInvalid(errors.ErrDetached, b.name, "Attach", "state check")
	}
	if b.state != StateConstructed {
		return errors.WrapInvalid(errors.ErrDuplicateName, b.name, "Attach", "already attached check")
	}
	b.state = StateAttached
	b.emitter = em
	return nil
}

// Detach severs the block from its graph. Detached blocks accept no further
// calls. Called by the engine after all connections are removed.
func (b *Block) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateDetached
	b.emitter = nil
}

// Deactivate returns an active block to the attached state, typically when
// the graph stops.
func (b *Block) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateActive {
		b.state = StateAttached
	}
}

// Emitter returns the engine emitter bound at attach time, nil while the
// block is not part of a graph.
func (b *Block) Emitter() Emitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitter
}

// Deliver writes a value into an input port and synchronously invokes the
// block's strategy. This is the sole trigger for block computation. Called
// by the engine during propagation and injection.
func (b *Block) Deliver(ctx context.Context, exec Exec, portName string, value any) error {
	p := b.inputIdx[portName]
	if p == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no input port %q", errors.ErrUnknownPort, b.name, portName),
			b.name, "Deliver", "port lookup")
	}

	b.mu.Lock()
	if b.state == StateDetached {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrDetached, b.name, "Deliver", "state check")
	}
	p.typeTag.checkValue(value)
	p.value = value
	p.hasSet = true
	if b.state == StateAttached {
		b.state = StateActive
	}
	b.mu.Unlock()

	return b.strategy.OnInputReceived(ctx, exec, portName, value)
}

// DeliverFormat stores an upstream format on an input port and invokes the
// strategy's OnFormatChanged hook when it has one.
func (b *Block) DeliverFormat(exec Exec, portName string, format *media.Info) error {
	p := b.inputIdx[portName]
	if p == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no input port %q", errors.ErrUnknownPort, b.name, portName),
			b.name, "DeliverFormat", "port lookup")
	}

	b.mu.Lock()
	if b.state == StateDetached {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrDetached, b.name, "DeliverFormat", "state check")
	}
	p.format = format
	b.mu.Unlock()

	if watcher, ok := b.strategy.(FormatWatcher); ok {
		return watcher.OnFormatChanged(exec, portName, format)
	}
	return nil
}

// RecordEmit stores the last value emitted on an output port. Called by the
// engine's emitter so that Read on an output port reflects the latest
// emission.
func (b *Block) RecordEmit(portName string, value any) error {
	p := b.outputIdx[portName]
	if p == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no output port %q", errors.ErrUnknownPort, b.name, portName),
			b.name, "RecordEmit", "port lookup")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateDetached {
		return errors.WrapInvalid(errors.ErrDetached, b.name, "RecordEmit", "state check")
	}
	p.typeTag.checkValue(value)
	p.value = value
	p.hasSet = true
	if b.state == StateAttached {
		b.state = StateActive
	}
	return nil
}

// RecordFormat stores the current format of an output port. Called by the
// engine's emitter on SetFormat.
func (b *Block) RecordFormat(portName string, format *media.Info) error {
	p := b.outputIdx[portName]
	if p == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no output port %q", errors.ErrUnknownPort, b.name, portName),
			b.name, "RecordFormat", "port lookup")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p.format = format
	return nil
}

// Property returns the current value of a declared property.
func (b *Block) Property(name string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.props[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s has no property %q", errors.ErrUnknownProperty, b.name, name),
			b.name, "Property", "property lookup")
	}
	return value, nil
}

// PropertyNames returns the declared property names in declaration order.
func (b *Block) PropertyNames() []string {
	result := make([]string, len(b.propOrder))
	copy(result, b.propOrder)
	return result
}

// Properties returns a snapshot of all property values.
func (b *Block) Properties() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make(map[string]any, len(b.props))
	for k, v := range b.props {
		result[k] = v
	}
	return result
}

// SetProperty updates a declared property. Setting a property to its current
// value is a no-op and triggers no notification. On every accepted set the
// block's listeners are notified synchronously, and a strategy implementing
// PropertyWatcher recomputes its derived state.
func (b *Block) SetProperty(name string, value any) error {
	b.mu.Lock()
	if b.state == StateDetached {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrDetached, b.name, "SetProperty", "state check")
	}
	old, ok := b.props[name]
	if !ok {
		b.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no property %q", errors.ErrUnknownProperty, b.name, name),
			b.name, "SetProperty", "property lookup")
	}
	if reflect.DeepEqual(old, value) {
		b.mu.Unlock()
		return nil
	}
	b.props[name] = value
	em := b.emitter
	b.mu.Unlock()

	// Listeners run outside the lock so they may read block state freely.
	b.notifier.notify(Change{Block: b.name, Property: name, Old: old, New: value})

	if watcher, ok := b.strategy.(PropertyWatcher); ok {
		if err := watcher.OnPropertyChanged(em, name, value); err != nil {
			return errors.WrapFault(err, b.name, "SetProperty", "property recompute")
		}
	}
	return nil
}
