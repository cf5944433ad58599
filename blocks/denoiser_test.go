package blocks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/media"
)

func TestDenoiserRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name       string
		properties map[string]any
	}{
		{"zero strength", map[string]any{"strength": 0}},
		{"strength too large", map[string]any{"strength": 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDenoiserBlock("Denoise", tt.properties, slog.Default())
			require.Error(t, err)
		})
	}
}

func TestDenoiserPreservesQuadraticTrace(t *testing.T) {
	b, err := newDenoiserBlock("Denoise", map[string]any{"strength": 2}, slog.Default())
	require.NoError(t, err)

	format := media.New()
	format.BlockSize = 21
	exec := newCaptureExec()
	require.NoError(t, b.DeliverFormat(exec, "in-db", format))

	// a quadratic is in the fitted model, so the filter reproduces it
	// exactly, edges included; DC passes through untouched
	in := sampleFrame(1, 21, func(_, i int) float64 {
		if i == 0 {
			return -200
		}
		x := float64(i - 1)
		return 0.05*x*x - x + 3
	})
	deliver(t, b, exec, "in-db", in)

	emitted := exec.emitted("out-db")
	require.Len(t, emitted, 1)
	out := emitted[0].(*media.Frame)
	for k := range in.Data[0] {
		assert.InDeltaf(t, in.Data[0][k], out.Data[0][k], 1e-9, "bin %d", k)
	}
}

func TestDenoiserFlattensSpike(t *testing.T) {
	b, err := newDenoiserBlock("Denoise", map[string]any{"strength": 1}, slog.Default())
	require.NoError(t, err)

	format := media.New()
	format.BlockSize = 10
	exec := newCaptureExec()
	require.NoError(t, b.DeliverFormat(exec, "in-db", format))

	// flat -40 dB with a 0 dB spike in the middle of the trace
	in := sampleFrame(1, 10, func(_, i int) float64 {
		if i == 5 {
			return 0
		}
		return -40
	})
	deliver(t, b, exec, "in-db", in)

	emitted := exec.emitted("out-db")
	require.Len(t, emitted, 1)
	out := emitted[0].(*media.Frame)

	// quadratic taps over 5 bins: (-3, 12, 17, 12, -3)/35
	assert.InDelta(t, (17*0.0-2*3*(-40.0)+2*12*(-40.0))/35, out.Data[0][5], 1e-9)
	assert.Less(t, out.Data[0][5], in.Data[0][5])
}

func TestDenoiserDropsDataBeforeFormat(t *testing.T) {
	b, err := newDenoiserBlock("Denoise", nil, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in-db", sampleFrame(1, 10, func(_, _ int) float64 { return -40 }))
	assert.Empty(t, exec.emitted("out-db"))
}

func TestDenoiserRejectsWrongBinCount(t *testing.T) {
	b, err := newDenoiserBlock("Denoise", nil, slog.Default())
	require.NoError(t, err)

	format := media.New()
	format.BlockSize = 10
	exec := newCaptureExec()
	require.NoError(t, b.DeliverFormat(exec, "in-db", format))

	err = b.Deliver(context.Background(), exec, "in-db", sampleFrame(1, 7, func(_, _ int) float64 { return 0 }))
	require.Error(t, err)
}
