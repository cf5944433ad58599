package blocks

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/media"
)

func TestFFTRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name       string
		properties map[string]any
	}{
		{"non power of two", map[string]any{"size": 1000}},
		{"too small", map[string]any{"size": 1}},
		{"unknown window", map[string]any{"window": "blackman-harris-7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFFTBlock("FFT", tt.properties, slog.Default())
			require.Error(t, err)
		})
	}
}

func TestFFTWaitsForFullWindow(t *testing.T) {
	b, err := newFFTBlock("FFT", map[string]any{"size": 256}, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(1, 100, func(_, i int) float64 { return 0 }))
	assert.Empty(t, exec.emitted("out-abs"))

	deliver(t, b, exec, "in", sampleFrame(1, 200, func(_, i int) float64 { return 0 }))
	assert.Len(t, exec.emitted("out-abs"), 1)
	assert.Len(t, exec.emitted("out-db"), 1)
}

func TestFFTDetectsToneBin(t *testing.T) {
	const size = 256
	const cycles = 16 // exactly 16 cycles per window puts the tone in bin 16

	b, err := newFFTBlock("FFT", map[string]any{"size": size, "window": WindowRectangular}, slog.Default())
	require.NoError(t, err)

	tone := sampleFrame(1, size, func(_, i int) float64 {
		return math.Sin(2 * math.Pi * cycles * float64(i) / size)
	})

	exec := newCaptureExec()
	deliver(t, b, exec, "in", tone)

	emitted := exec.emitted("out-abs")
	require.Len(t, emitted, 1)
	spectrum := emitted[0].(*media.Frame)
	require.Equal(t, size/2+1, spectrum.Samples())

	peak := 0
	for k, v := range spectrum.Data[0] {
		if v > spectrum.Data[0][peak] {
			peak = k
		}
	}
	assert.Equal(t, cycles, peak)

	// unit-amplitude sine has RMS 1/sqrt(2)
	assert.InDelta(t, 1/math.Sqrt2, spectrum.Data[0][peak], 0.01)
}

func TestFFTDerivesOutputFormat(t *testing.T) {
	b, err := newFFTBlock("FFT", map[string]any{"size": 1024}, slog.Default())
	require.NoError(t, err)

	format := media.New()
	format.SampleRate = 48000
	format.BlockSize = 960
	format.Channels = []media.Channel{media.NewChannel("Ch0", "")}

	exec := newCaptureExec()
	require.NoError(t, b.DeliverFormat(exec, "in", format))

	out := exec.format("out-db")
	require.NotNil(t, out)
	assert.Equal(t, 1024/2+1, out.BlockSize)
	assert.InDelta(t, 48000.0/1024, out.SampleRate, 1e-9)
	require.Len(t, out.Channels, 1)
	assert.Equal(t, "X[Ch0]", out.Channels[0].Name)

	// downstream analyzers recover the source parameters from the metadata
	assert.Equal(t, 1024, out.Metadata["fft_size"])
	assert.Equal(t, 48000.0, out.Metadata["audio_samplerate"])
}

func TestFFTSizeChangeDiscardsPendingSamples(t *testing.T) {
	b, err := newFFTBlock("FFT", map[string]any{"size": 256}, slog.Default())
	require.NoError(t, err)

	exec := newCaptureExec()
	deliver(t, b, exec, "in", sampleFrame(1, 200, func(_, i int) float64 { return 1 }))

	require.NoError(t, b.SetProperty("size", 128))

	// old partial window is gone: 100 fresh samples are not enough
	deliver(t, b, exec, "in", sampleFrame(1, 100, func(_, i int) float64 { return 1 }))
	assert.Empty(t, exec.emitted("out-abs"))

	deliver(t, b, exec, "in", sampleFrame(1, 28, func(_, i int) float64 { return 1 }))
	assert.Len(t, exec.emitted("out-abs"), 1)
}
