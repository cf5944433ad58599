package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeFFT identifies the FFT analyzer block.
const TypeFFT = "analysis.fft"

// FFT window functions.
const (
	WindowRectangular = "rectangular"
	WindowHann        = "hann"
)

// FFTConfig holds the analyzer's initial property values.
type FFTConfig struct {
	Size   int    `mapstructure:"size"`
	Window string `mapstructure:"window"`
}

func (c FFTConfig) validate() error {
	if c.Size < 2 || c.Size&(c.Size-1) != 0 {
		return fmt.Errorf("%w: fft size must be a power of two, got %d", errors.ErrSchema, c.Size)
	}
	switch c.Window {
	case WindowRectangular, WindowHann:
	default:
		return fmt.Errorf("%w: unknown window %q", errors.ErrSchema, c.Window)
	}
	return nil
}

// fftAnalyzer accumulates incoming sample frames per channel and emits a
// magnitude spectrum every time a full analysis window is available. Two
// outputs carry the same spectrum linearly ("out-abs") and in dB ("out-db").
type fftAnalyzer struct {
	name string

	mu      sync.Mutex
	cfg     FFTConfig
	fft     *fourier.FFT
	window  []float64
	pending [][]float64
	format  *media.Info
}

func fftSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in", Type: block.TypeSamples, Description: "time-domain frames"},
		},
		Outputs: []block.PortSpec{
			{Name: "out-abs", Type: block.TypeSpectrum, Description: "linear magnitude spectrum"},
			{Name: "out-db", Type: block.TypeSpectrum, Description: "magnitude spectrum in dB"},
		},
		Properties: []block.PropertySpec{
			{Name: "size", Default: 4096, Description: "analysis window length in samples"},
			{Name: "window", Default: WindowHann, Description: "window function"},
		},
	}
}

func newFFTBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := FFTConfig{Size: 4096, Window: WindowHann}
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newFFTBlock", "config decoding")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WrapInvalid(err, name, "newFFTBlock", "config validation")
	}

	strategy := &fftAnalyzer{name: name, cfg: cfg}
	strategy.rebuild()

	b, err := block.New(name, TypeFFT, fftSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	if err := b.SetProperty("size", cfg.Size); err != nil {
		return nil, err
	}
	if err := b.SetProperty("window", cfg.Window); err != nil {
		return nil, err
	}
	return b, nil
}

// rebuild recreates the FFT plan and window table. Caller holds a.mu or has
// exclusive access.
func (a *fftAnalyzer) rebuild() {
	a.fft = fourier.NewFFT(a.cfg.Size)
	a.window = make([]float64, a.cfg.Size)
	for i := range a.window {
		switch a.cfg.Window {
		case WindowHann:
			a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(a.cfg.Size-1)))
		default:
			a.window[i] = 1.0
		}
	}
	a.pending = nil
}

func (a *fftAnalyzer) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected *media.Frame, got %T", errors.ErrTypeMismatch, value),
			a.name, "OnInputReceived", "value handling")
	}

	a.mu.Lock()
	if len(a.pending) != frame.Channels() {
		a.pending = make([][]float64, frame.Channels())
	}
	for ch := range frame.Data {
		a.pending[ch] = append(a.pending[ch], frame.Data[ch]...)
	}

	var spectra []*media.Frame
	for len(a.pending) > 0 && len(a.pending[0]) >= a.cfg.Size {
		spectra = append(spectra, a.analyze())
	}
	a.mu.Unlock()

	for _, abs := range spectra {
		if err := exec.Emit("out-abs", abs); err != nil {
			return err
		}
		if err := exec.Emit("out-db", toDecibels(abs)); err != nil {
			return err
		}
	}
	return nil
}

// analyze consumes one window from the pending buffers and returns the
// linear magnitude spectrum. Caller holds a.mu.
func (a *fftAnalyzer) analyze() *media.Frame {
	bins := a.cfg.Size/2 + 1
	out := media.NewFrame(len(a.pending), bins)
	out.Info = a.outputFormat()

	buf := make([]float64, a.cfg.Size)
	for ch := range a.pending {
		for i := 0; i < a.cfg.Size; i++ {
			buf[i] = a.pending[ch][i] * a.window[i]
		}
		a.pending[ch] = a.pending[ch][a.cfg.Size:]

		coeffs := a.fft.Coefficients(nil, buf)
		scale := math.Sqrt2 / float64(a.cfg.Size)
		for k, c := range coeffs {
			mag := math.Hypot(real(c), imag(c)) * scale
			if k == 0 {
				mag = math.Hypot(real(c), imag(c)) / float64(a.cfg.Size)
			}
			out.Data[ch][k] = mag
		}
	}
	return out
}

// toDecibels converts a linear magnitude frame to dB, clamping silence so
// log10 never sees zero.
func toDecibels(abs *media.Frame) *media.Frame {
	db := abs.Clone()
	for _, ch := range db.Data {
		for i, v := range ch {
			ch[i] = 20 * math.Log10(math.Max(v, 1e-10))
		}
	}
	return db
}

// OnFormatChanged implements block.FormatWatcher: the spectrum format is
// derived from the input format and the analysis size.
func (a *fftAnalyzer) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	a.mu.Lock()
	a.format = format
	out := a.outputFormat()
	a.mu.Unlock()

	if err := exec.SetFormat("out-abs", out); err != nil {
		return err
	}
	return exec.SetFormat("out-db", out)
}

// OnPropertyChanged implements block.PropertyWatcher: a size or window
// change rebuilds the plan and discards partially filled buffers.
func (a *fftAnalyzer) OnPropertyChanged(em block.Emitter, name string, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.cfg
	if err := mapstructure.Decode(map[string]any{name: value}, &next); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), a.name, "OnPropertyChanged", "property decoding")
	}
	if err := next.validate(); err != nil {
		return errors.WrapInvalid(err, a.name, "OnPropertyChanged", "property validation")
	}
	a.cfg = next
	a.rebuild()

	if em != nil && a.format != nil {
		out := a.outputFormat()
		if err := em.SetFormat("out-abs", out); err != nil {
			return err
		}
		return em.SetFormat("out-db", out)
	}
	return nil
}

// outputFormat derives the spectrum format: one value per bin, bin width
// samplerate/size. Caller holds a.mu.
func (a *fftAnalyzer) outputFormat() *media.Info {
	out := media.New()
	out.Name = a.name
	out.BlockSize = a.cfg.Size/2 + 1
	out.Metadata["domain"] = "frequency"
	out.Metadata["fft_size"] = a.cfg.Size
	if a.format != nil {
		out.SampleRate = a.format.SampleRate / float64(a.cfg.Size)
		out.Metadata["audio_samplerate"] = a.format.SampleRate
		for _, ch := range a.format.Channels {
			out.Channels = append(out.Channels, media.NewChannel(fmt.Sprintf("X[%s]", ch.Name), ""))
		}
	}
	return out
}
