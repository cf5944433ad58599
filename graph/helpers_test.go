package graph

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/block"
)

// passthrough forwards every input value to the "out" port, optionally
// scaled by the "factor" property.
type passthrough struct {
	mu     sync.Mutex
	factor float64
	seen   []any
}

func (s *passthrough) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	s.mu.Lock()
	s.seen = append(s.seen, value)
	factor := s.factor
	s.mu.Unlock()

	if v, ok := value.(float64); ok && factor != 0 {
		return exec.Emit("out", v*factor)
	}
	return exec.Emit("out", value)
}

func (s *passthrough) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	if name != "factor" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := value.(float64); ok {
		s.factor = v
	}
	return nil
}

func (s *passthrough) values() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]any, len(s.seen))
	copy(result, s.seen)
	return result
}

// sink records everything delivered to it.
type sink struct {
	mu   sync.Mutex
	seen []any
}

func (s *sink) OnInputReceived(_ context.Context, _ block.Exec, _ string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, value)
	return nil
}

func (s *sink) values() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]any, len(s.seen))
	copy(result, s.seen)
	return result
}

func sourceSchema() block.Schema {
	return block.Schema{
		Outputs: []block.PortSpec{{Name: "out", Type: block.TypeAny}},
	}
}

func scaleSchema() block.Schema {
	return block.Schema{
		Inputs:  []block.PortSpec{{Name: "in", Type: block.TypeAny}},
		Outputs: []block.PortSpec{{Name: "out", Type: block.TypeAny}},
		Properties: []block.PropertySpec{
			{Name: "factor", Default: 1.0},
		},
	}
}

func sinkSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{{Name: "in", Type: block.TypeAny}},
	}
}

func newSourceBlock(t *testing.T, name string) *block.Block {
	t.Helper()
	b, err := block.New(name, "test.source", sourceSchema(),
		block.StrategyFunc(func(context.Context, block.Exec, string, any) error { return nil }),
		slog.Default())
	require.NoError(t, err)
	return b
}

func newScaleBlock(t *testing.T, name string, factor float64) (*block.Block, *passthrough) {
	t.Helper()
	strategy := &passthrough{factor: factor}
	b, err := block.New(name, "test.scale", scaleSchema(), strategy, slog.Default())
	require.NoError(t, err)
	require.NoError(t, b.SetProperty("factor", factor))
	return b, strategy
}

func newSinkBlock(t *testing.T, name string) (*block.Block, *sink) {
	t.Helper()
	strategy := &sink{}
	b, err := block.New(name, "test.sink", sinkSchema(), strategy, slog.Default())
	require.NoError(t, err)
	return b, strategy
}

// newChain builds Source -> Scale -> Sink and returns the engine plus the
// terminal sink strategy.
func newChain(t *testing.T, factor float64) (*Engine, *sink) {
	t.Helper()
	e := NewEngine(block.NewRegistry(), slog.Default(), nil)
	ctx := context.Background()

	src := newSourceBlock(t, "Source")
	scale, _ := newScaleBlock(t, "Scale", factor)
	snk, recorder := newSinkBlock(t, "Sink")

	require.NoError(t, e.AddBlock(ctx, src))
	require.NoError(t, e.AddBlock(ctx, scale))
	require.NoError(t, e.AddBlock(ctx, snk))
	require.NoError(t, e.Connect(ctx, "Source", "out", "Scale", "in"))
	require.NoError(t, e.Connect(ctx, "Scale", "out", "Sink", "in"))
	return e, recorder
}
