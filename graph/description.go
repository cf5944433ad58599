package graph

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/metric"
)

// BlockDescription is the serializable form of one block: its unique name,
// factory type, and initial property values.
type BlockDescription struct {
	Name       string         `json:"name" yaml:"name"`
	Type       string         `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Description is the serializable form of a whole graph. Block and
// connection order is preserved, so building a description replays the
// original insertion order.
type Description struct {
	Name        string             `json:"name,omitempty" yaml:"name,omitempty"`
	Blocks      []BlockDescription `json:"blocks" yaml:"blocks"`
	Connections []Connection       `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Description snapshots the engine's current topology: blocks in insertion
// order with their current property values, and the connection table.
func (e *Engine) Description() Description {
	e.mu.RLock()
	defer e.mu.RUnlock()

	desc := Description{
		Blocks:      make([]BlockDescription, 0, len(e.blockOrder)),
		Connections: make([]Connection, len(e.connections)),
	}
	for _, name := range e.blockOrder {
		b := e.blocks[name]
		desc.Blocks = append(desc.Blocks, BlockDescription{
			Name:       b.Name(),
			Type:       b.TypeID(),
			Properties: b.Properties(),
		})
	}
	copy(desc.Connections, e.connections)
	return desc
}

// Validate checks a description for structural problems without building it:
// duplicate or empty block names, and connections referencing undeclared
// blocks.
func (d Description) Validate() error {
	seen := make(map[string]bool, len(d.Blocks))
	for _, b := range d.Blocks {
		if b.Name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: block with empty name", errors.ErrSchema),
				"Description", "Validate", "block name validation")
		}
		if b.Type == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: block %q has no type", errors.ErrSchema, b.Name),
				"Description", "Validate", "block type validation")
		}
		if seen[b.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: block %q", errors.ErrDuplicateName, b.Name),
				"Description", "Validate", "duplicate block check")
		}
		seen[b.Name] = true
	}
	for _, c := range d.Connections {
		if !seen[c.Source.Block] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: connection source block %q not declared", errors.ErrSchema, c.Source.Block),
				"Description", "Validate", "connection source check")
		}
		if !seen[c.Destination.Block] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: connection destination block %q not declared", errors.ErrSchema, c.Destination.Block),
				"Description", "Validate", "connection destination check")
		}
	}
	return nil
}

// Build constructs a fresh engine from a description, atomically: either the
// whole description builds or an error is returned and no engine exists.
// Blocks are instantiated through the registry in description order, then
// every connection is applied; any factory failure or rejected connection
// aborts the build.
func Build(desc Description, registry *block.Registry, logger *slog.Logger, metrics *metric.Registry) (*Engine, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	e := NewEngine(registry, logger, metrics)
	ctx := context.Background()

	for _, bd := range desc.Blocks {
		b, err := registry.Create(bd.Type, bd.Name, bd.Properties, logger)
		if err != nil {
			return nil, errors.Wrap(
				fmt.Errorf("%w: block %q: %w", errors.ErrSchema, bd.Name, err),
				"Build", "Build", "block instantiation")
		}
		if err := e.AddBlock(ctx, b); err != nil {
			return nil, errors.Wrap(err, "Build", "Build", "block insertion")
		}
	}

	for _, c := range desc.Connections {
		err := e.Connect(ctx, c.Source.Block, c.Source.Port, c.Destination.Block, c.Destination.Port)
		if err != nil {
			return nil, errors.Wrap(
				fmt.Errorf("%w: connection %s -> %s: %w", errors.ErrSchema, c.Source, c.Destination, err),
				"Build", "Build", "connection application")
		}
	}

	return e, nil
}

// MarshalYAMLBytes serializes a description to YAML.
func (d Description) MarshalYAMLBytes() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "Description", "MarshalYAMLBytes", "yaml encoding")
	}
	return data, nil
}

// ParseDescription decodes a YAML description and validates it.
func ParseDescription(data []byte) (Description, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return Description{}, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err),
			"Description", "ParseDescription", "yaml decoding")
	}
	if err := desc.Validate(); err != nil {
		return Description{}, err
	}
	return desc, nil
}
