package graph

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
)

// testRegistry registers the source/scale/sink trio used by the description
// tests.
func testRegistry(t *testing.T) *block.Registry {
	t.Helper()
	r := block.NewRegistry()

	require.NoError(t, r.Register(&block.Registration{
		TypeID: "test.source",
		Schema: sourceSchema(),
		Factory: func(name string, _ map[string]any, logger *slog.Logger) (*block.Block, error) {
			return block.New(name, "test.source", sourceSchema(),
				block.StrategyFunc(func(context.Context, block.Exec, string, any) error { return nil }),
				logger)
		},
	}))

	require.NoError(t, r.Register(&block.Registration{
		TypeID: "test.scale",
		Schema: scaleSchema(),
		Factory: func(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
			factor := 1.0
			if v, ok := properties["factor"].(float64); ok {
				factor = v
			}
			strategy := &passthrough{factor: factor}
			b, err := block.New(name, "test.scale", scaleSchema(), strategy, logger)
			if err != nil {
				return nil, err
			}
			if err := b.SetProperty("factor", factor); err != nil {
				return nil, err
			}
			return b, nil
		},
	}))

	require.NoError(t, r.Register(&block.Registration{
		TypeID: "test.sink",
		Schema: sinkSchema(),
		Factory: func(name string, _ map[string]any, logger *slog.Logger) (*block.Block, error) {
			return block.New(name, "test.sink", sinkSchema(), &sink{}, logger)
		},
	}))

	return r
}

func chainDescription() Description {
	return Description{
		Name: "chain",
		Blocks: []BlockDescription{
			{Name: "Source", Type: "test.source"},
			{Name: "Scale", Type: "test.scale", Properties: map[string]any{"factor": 2.0}},
			{Name: "Sink", Type: "test.sink"},
		},
		Connections: []Connection{
			{Source: PortRef{"Source", "out"}, Destination: PortRef{"Scale", "in"}},
			{Source: PortRef{"Scale", "out"}, Destination: PortRef{"Sink", "in"}},
		},
	}
}

func TestBuildFromDescription(t *testing.T) {
	e, err := Build(chainDescription(), testRegistry(t), slog.Default(), nil)
	require.NoError(t, err)

	require.Len(t, e.Blocks(), 3)
	require.Len(t, e.Connections(), 2)

	// the built graph is live
	require.NoError(t, e.Inject(context.Background(), "Source", "out", 5.0))
	recorder := e.Block("Sink").Strategy().(*sink)
	assert.Equal(t, []any{10.0}, recorder.values())
}

func TestBuildRejectsUnknownType(t *testing.T) {
	desc := chainDescription()
	desc.Blocks[1].Type = "test.unknown"

	_, err := Build(desc, testRegistry(t), slog.Default(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchema)
}

func TestBuildRejectsBadConnection(t *testing.T) {
	desc := chainDescription()
	desc.Connections = append(desc.Connections, Connection{
		Source:      PortRef{"Sink", "out"},
		Destination: PortRef{"Source", "in"},
	})

	_, err := Build(desc, testRegistry(t), slog.Default(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchema)
}

func TestDescriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Description)
		wantErr error
	}{
		{"duplicate block name", func(d *Description) {
			d.Blocks[2].Name = "Source"
		}, errors.ErrDuplicateName},
		{"empty block name", func(d *Description) {
			d.Blocks[0].Name = ""
		}, errors.ErrSchema},
		{"missing type", func(d *Description) {
			d.Blocks[0].Type = ""
		}, errors.ErrSchema},
		{"connection to undeclared block", func(d *Description) {
			d.Connections[0].Destination.Block = "Ghost"
		}, errors.ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := chainDescription()
			tt.mutate(&desc)
			err := desc.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDescriptionRoundTrip(t *testing.T) {
	e, err := Build(chainDescription(), testRegistry(t), slog.Default(), nil)
	require.NoError(t, err)

	snapshot := e.Description()
	data, err := snapshot.MarshalYAMLBytes()
	require.NoError(t, err)

	parsed, err := ParseDescription(data)
	require.NoError(t, err)

	rebuilt, err := Build(parsed, testRegistry(t), slog.Default(), nil)
	require.NoError(t, err)

	// block and connection order survives the round trip
	assert.Equal(t, snapshot.Blocks, rebuilt.Description().Blocks)
	assert.Equal(t, snapshot.Connections, rebuilt.Description().Connections)

	// property values survive too
	factor, err := rebuilt.Block("Scale").Property("factor")
	require.NoError(t, err)
	assert.Equal(t, 2.0, factor)
}

func TestParseDescriptionRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDescription([]byte("blocks: [not: {valid"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchema)
}
