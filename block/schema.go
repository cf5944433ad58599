package block

import (
	"fmt"

	"github.com/Steve19802/workbench/errors"
)

// PropertySpec declares an observable property and its default value.
type PropertySpec struct {
	Name        string `json:"name" yaml:"name"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema declares the ports and properties of a block type. Every block of
// that type is constructed from the same schema; ports cannot be added or
// removed at runtime.
type Schema struct {
	Inputs     []PortSpec     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []PortSpec     `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Properties []PropertySpec `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Validate checks the schema for duplicate port or property names and for
// specs whose declared direction contradicts the list they appear in.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Inputs))
	for _, spec := range s.Inputs {
		if spec.Name == "" {
			return errors.WrapInvalid(errors.ErrSchema, "Schema", "Validate", "empty input port name")
		}
		if spec.Direction != "" && spec.Direction != DirectionInput {
			return errors.WrapInvalid(
				fmt.Errorf("%w: input port %q declared with direction %q",
					errors.ErrSchema, spec.Name, spec.Direction),
				"Schema", "Validate", "input direction check")
		}
		if seen[spec.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: duplicate input port %q", errors.ErrSchema, spec.Name),
				"Schema", "Validate", "input uniqueness check")
		}
		seen[spec.Name] = true
	}

	seen = make(map[string]bool, len(s.Outputs))
	for _, spec := range s.Outputs {
		if spec.Name == "" {
			return errors.WrapInvalid(errors.ErrSchema, "Schema", "Validate", "empty output port name")
		}
		if spec.Direction != "" && spec.Direction != DirectionOutput {
			return errors.WrapInvalid(
				fmt.Errorf("%w: output port %q declared with direction %q",
					errors.ErrSchema, spec.Name, spec.Direction),
				"Schema", "Validate", "output direction check")
		}
		if seen[spec.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: duplicate output port %q", errors.ErrSchema, spec.Name),
				"Schema", "Validate", "output uniqueness check")
		}
		seen[spec.Name] = true
	}

	seen = make(map[string]bool, len(s.Properties))
	for _, spec := range s.Properties {
		if spec.Name == "" {
			return errors.WrapInvalid(errors.ErrSchema, "Schema", "Validate", "empty property name")
		}
		if seen[spec.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: duplicate property %q", errors.ErrSchema, spec.Name),
				"Schema", "Validate", "property uniqueness check")
		}
		seen[spec.Name] = true
	}

	return nil
}
