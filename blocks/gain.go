package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeGain identifies the gain block.
const TypeGain = "process.gain"

// GainConfig holds the gain block's initial property values.
type GainConfig struct {
	Factor float64 `mapstructure:"factor"`
}

// gain multiplies every incoming value by its factor. It accepts scalar
// values and sample frames on the same port.
type gain struct {
	name string

	mu     sync.Mutex
	factor float64
}

func gainSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in", Type: block.TypeAny, Description: "scalar or frame input"},
		},
		Outputs: []block.PortSpec{
			{Name: "out", Type: block.TypeAny, Description: "scaled output"},
		},
		Properties: []block.PropertySpec{
			{Name: "factor", Default: 1.0, Description: "multiplication factor"},
		},
	}
}

func newGainBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := GainConfig{Factor: 1.0}
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newGainBlock", "config decoding")
	}

	strategy := &gain{name: name, factor: cfg.Factor}
	b, err := block.New(name, TypeGain, gainSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	if err := b.SetProperty("factor", cfg.Factor); err != nil {
		return nil, err
	}
	return b, nil
}

func (g *gain) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	g.mu.Lock()
	factor := g.factor
	g.mu.Unlock()

	switch v := value.(type) {
	case float64:
		return exec.Emit("out", v*factor)
	case *media.Frame:
		scaled := v.Clone()
		for _, ch := range scaled.Data {
			for i := range ch {
				ch[i] *= factor
			}
		}
		return exec.Emit("out", scaled)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unsupported value type %T", errors.ErrTypeMismatch, value),
			g.name, "OnInputReceived", "value handling")
	}
}

// OnPropertyChanged implements block.PropertyWatcher. A factor change does
// not retrigger downstream computation on its own; the next delivery uses
// the new factor.
func (g *gain) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	if name != "factor" {
		return nil
	}
	factor, ok := value.(float64)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: factor must be float64, got %T", errors.ErrSchema, value),
			g.name, "OnPropertyChanged", "property validation")
	}

	g.mu.Lock()
	g.factor = factor
	g.mu.Unlock()
	return nil
}

// OnFormatChanged implements block.FormatWatcher: gain is shape-preserving,
// so the upstream format passes through unchanged apart from the name.
func (g *gain) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	out := format.Clone()
	if out != nil {
		out.Name = g.name
	}
	return exec.SetFormat("out", out)
}
