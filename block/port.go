package block

import (
	"fmt"

	"github.com/Steve19802/workbench/media"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// TypeTag identifies what kind of value a port carries. Tags are checked at
// connection time, not at write time: a write of a mismatched value is a
// programming error and fails fast.
type TypeTag string

// Well-known type tags used by the built-in block library
const (
	// TypeAny is compatible with every tag
	TypeAny TypeTag = "any"
	// TypeSamples tags time-domain sample frames
	TypeSamples TypeTag = "samples"
	// TypeSpectrum tags frequency-domain magnitude frames
	TypeSpectrum TypeTag = "spectrum"
	// TypeScalar tags single float64 values
	TypeScalar TypeTag = "scalar"
)

// Compatible reports whether an output tag may be connected to an input tag.
// Tags match when equal or when either side is TypeAny.
func Compatible(out, in TypeTag) bool {
	return out == in || out == TypeAny || in == TypeAny
}

// TypeViolation is the panic value raised when a port is written with a
// value that contradicts its type tag. This is a programmer error, not a
// runtime-recoverable condition: the engine's fault isolation deliberately
// re-raises it instead of reporting a block fault.
type TypeViolation struct {
	Msg string
}

func (v TypeViolation) String() string { return v.Msg }

// IsTypeViolation reports whether a recovered panic value is a fail-fast
// port type violation.
func IsTypeViolation(r any) bool {
	_, ok := r.(TypeViolation)
	return ok
}

// checkValue enforces the value convention for a tag. Violations are
// programmer errors, so it panics rather than returning an error.
func (t TypeTag) checkValue(value any) {
	switch t {
	case TypeSamples, TypeSpectrum:
		if _, ok := value.(*media.Frame); !ok {
			panic(TypeViolation{Msg: fmt.Sprintf(
				"block: %q port written with %T, want *media.Frame", t, value)})
		}
	case TypeScalar:
		if _, ok := value.(float64); !ok {
			panic(TypeViolation{Msg: fmt.Sprintf(
				"block: %q port written with %T, want float64", t, value)})
		}
	}
}

// PortSpec declares a port at block-construction time.
type PortSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Direction   Direction `json:"direction" yaml:"direction"`
	Type        TypeTag   `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Port is a named, directional attachment point on a block. Ports are
// declared when the block is constructed and are immutable in count and name
// thereafter; only their current value and format change.
type Port struct {
	name      string
	direction Direction
	typeTag   TypeTag
	owner     *Block

	// guarded by the owner's mutex
	value  any
	hasSet bool
	format *media.Info
}

// Name returns the port name, unique per block and direction.
func (p *Port) Name() string { return p.name }

// Direction returns whether the port is an input or an output.
func (p *Port) Direction() Direction { return p.direction }

// Type returns the port's data-type tag.
func (p *Port) Type() TypeTag { return p.typeTag }

// Owner returns the block this port belongs to.
func (p *Port) Owner() *Block { return p.owner }

// Read returns the last written value. ok is false when the port has never
// been written.
func (p *Port) Read() (value any, ok bool) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.value, p.hasSet
}

// Format returns the stream format currently associated with the port, nil
// when none has been set or received yet.
func (p *Port) Format() *media.Info {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.format
}

func (p *Port) String() string {
	return fmt.Sprintf("%s.%s(%s/%s)", p.owner.name, p.name, p.direction, p.typeTag)
}
