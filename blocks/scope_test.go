package blocks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
	"github.com/Steve19802/workbench/pkg/scaling"
)

func newTestScope(t *testing.T, properties map[string]any) (*block.Block, *Scope) {
	t.Helper()
	b, err := newScopeBlock("Scope", properties, slog.Default())
	require.NoError(t, err)
	return b, b.Strategy().(*Scope)
}

func TestScopeRejectsBadConfig(t *testing.T) {
	_, err := newScopeBlock("Scope", map[string]any{"history": 0}, slog.Default())
	require.Error(t, err)

	_, err = newScopeBlock("Scope", map[string]any{"mode": "xy-hologram"}, slog.Default())
	require.Error(t, err)
}

func TestScopeRecordsHistory(t *testing.T) {
	b, scope := newTestScope(t, map[string]any{"history": 8})

	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(2, 4, func(ch, i int) float64 { return float64(ch*10 + i) }))
	deliver(t, b, exec, "in", sampleFrame(2, 4, func(ch, i int) float64 { return float64(ch*10 + i + 4) }))

	window := scope.Window(8)
	require.Len(t, window, 2)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, window[0])
	assert.Equal(t, []float64{10, 11, 12, 13, 14, 15, 16, 17}, window[1])

	// past the history capacity the oldest samples fall out
	deliver(t, b, exec, "in", sampleFrame(2, 4, func(ch, i int) float64 { return float64(ch*10 + i + 8) }))
	window = scope.Window(8)
	assert.Equal(t, []float64{4, 5, 6, 7, 8, 9, 10, 11}, window[0])
}

func TestScopeAcceptsScalars(t *testing.T) {
	b, scope := newTestScope(t, nil)

	exec := newCaptureExec()
	deliver(t, b, exec, "in", 1.5)
	deliver(t, b, exec, "in", 2.5)

	window := scope.Window(4)
	require.Len(t, window, 1)
	assert.Equal(t, []float64{1.5, 2.5}, window[0])
}

func TestScopeRejectsEmptyFrame(t *testing.T) {
	b, scope := newTestScope(t, nil)

	err := b.Deliver(context.Background(), newCaptureExec(), "in", media.NewFrame(0, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.Empty(t, scope.Window(4))
}

func TestScopeScaleRange(t *testing.T) {
	b, scope := newTestScope(t, nil)

	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(1, 4, func(_, i int) float64 { return float64(i) - 2 }))

	// automatic mode announced the data extremes
	assert.Equal(t, scaling.Range{Min: -2, Max: 1}, scope.Range())

	// switching to a manual range overrides it
	require.NoError(t, b.SetProperty("scale.mode", string(scaling.ModeManual)))
	require.NoError(t, b.SetProperty("scale.min", -5.0))
	require.NoError(t, b.SetProperty("scale.max", 5.0))
	assert.Equal(t, scaling.Range{Min: -5, Max: 5}, scope.Range())
}

func TestScopeTriggerAlignsWindow(t *testing.T) {
	b, scope := newTestScope(t, map[string]any{"history": 16})
	require.NoError(t, b.SetProperty("trigger.level", 3.0))

	// ramp 0..15: the positive-slope crossing of level 3 is at sample 3
	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(1, 16, func(_, i int) float64 { return float64(i) }))

	window := scope.Window(4)
	require.Len(t, window, 1)
	assert.Equal(t, []float64{3, 4, 5, 6}, window[0])
}

func TestScopeHistoryChangeResetsBuffers(t *testing.T) {
	b, scope := newTestScope(t, map[string]any{"history": 8})

	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(1, 4, func(_, i int) float64 { return float64(i) }))
	require.NotEmpty(t, scope.Window(8))

	require.NoError(t, b.SetProperty("history", 4))
	assert.Empty(t, scope.Window(8))

	deliver(t, b, exec, "in", sampleFrame(1, 6, func(_, i int) float64 { return float64(i) }))
	window := scope.Window(8)
	require.Len(t, window, 1)
	assert.Equal(t, []float64{2, 3, 4, 5}, window[0], "new capacity applies")
}

func TestScopeStoresFormat(t *testing.T) {
	b, scope := newTestScope(t, nil)

	format := media.New()
	format.SampleRate = 48000
	exec := newCaptureExec()
	require.NoError(t, b.DeliverFormat(exec, "in", format))

	require.NotNil(t, scope.Format())
	assert.Equal(t, 48000.0, scope.Format().SampleRate)
}
