package blocks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/media"
)

func TestMixerWaitsForBothInputs(t *testing.T) {
	b, err := newMixerBlock("Mix", nil, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in-a", 1.0)
	assert.Empty(t, exec.emitted("out"), "one input alone produces nothing")

	deliver(t, b, exec, "in-b", 2.0)
	assert.Equal(t, []any{3.0}, exec.emitted("out"))

	// later deliveries reuse the latest value of the other input
	deliver(t, b, exec, "in-a", 10.0)
	assert.Equal(t, []any{3.0, 12.0}, exec.emitted("out"))
}

func TestMixerSumsFrames(t *testing.T) {
	b, err := newMixerBlock("Mix", nil, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in-a", sampleFrame(1, 3, func(_, i int) float64 { return float64(i) }))
	deliver(t, b, exec, "in-b", sampleFrame(1, 3, func(_, i int) float64 { return 10 }))

	emitted := exec.emitted("out")
	require.Len(t, emitted, 1)
	assert.Equal(t, []float64{10, 11, 12}, emitted[0].(*media.Frame).Data[0])
}

func TestMixerRejectsMismatchedShapes(t *testing.T) {
	b, err := newMixerBlock("Mix", nil, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in-a", sampleFrame(1, 3, func(_, i int) float64 { return 0 }))

	err = b.Deliver(context.Background(), exec, "in-b", sampleFrame(2, 3, func(_, i int) float64 { return 0 }))
	require.Error(t, err)
}

func TestMixerRejectsMixedTypes(t *testing.T) {
	b, err := newMixerBlock("Mix", nil, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in-a", 1.0)

	err = b.Deliver(context.Background(), exec, "in-b", sampleFrame(1, 3, func(_, i int) float64 { return 0 }))
	require.Error(t, err)
}
