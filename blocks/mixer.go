package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeMixer identifies the two-input mixer block.
const TypeMixer = "process.mixer"

// mixer sums the latest values of its two inputs. It emits once both inputs
// have delivered at least one value, then again on every later delivery.
type mixer struct {
	name string

	mu   sync.Mutex
	last map[string]any
}

func mixerSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in-a", Type: block.TypeAny},
			{Name: "in-b", Type: block.TypeAny},
		},
		Outputs: []block.PortSpec{
			{Name: "out", Type: block.TypeAny, Description: "sum of both inputs"},
		},
	}
}

func newMixerBlock(name string, _ map[string]any, logger *slog.Logger) (*block.Block, error) {
	strategy := &mixer{name: name, last: make(map[string]any)}
	return block.New(name, TypeMixer, mixerSchema(), strategy, logger)
}

func (m *mixer) OnInputReceived(_ context.Context, exec block.Exec, port string, value any) error {
	m.mu.Lock()
	m.last[port] = value
	a, okA := m.last["in-a"]
	b, okB := m.last["in-b"]
	m.mu.Unlock()

	if !okA || !okB {
		return nil
	}

	sum, err := m.sum(a, b)
	if err != nil {
		return err
	}
	return exec.Emit("out", sum)
}

func (m *mixer) sum(a, b any) (any, error) {
	switch va := a.(type) {
	case float64:
		vb, ok := b.(float64)
		if !ok {
			return nil, m.mismatch(a, b)
		}
		return va + vb, nil
	case *media.Frame:
		vb, ok := b.(*media.Frame)
		if !ok {
			return nil, m.mismatch(a, b)
		}
		if va.Channels() != vb.Channels() || va.Samples() != vb.Samples() {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: frame shapes differ: %dx%d vs %dx%d", errors.ErrTypeMismatch,
					va.Channels(), va.Samples(), vb.Channels(), vb.Samples()),
				m.name, "sum", "shape check")
		}
		out := va.Clone()
		for ch := range out.Data {
			for i := range out.Data[ch] {
				out.Data[ch][i] += vb.Data[ch][i]
			}
		}
		return out, nil
	default:
		return nil, m.mismatch(a, b)
	}
}

func (m *mixer) mismatch(a, b any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: cannot mix %T with %T", errors.ErrTypeMismatch, a, b),
		m.name, "sum", "type check")
}

// OnFormatChanged implements block.FormatWatcher: the first known upstream
// format defines the output shape.
func (m *mixer) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	out := format.Clone()
	if out != nil {
		out.Name = m.name
	}
	return exec.SetFormat("out", out)
}
