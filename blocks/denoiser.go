package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/mat"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeDenoiser identifies the spectral denoiser block.
const TypeDenoiser = "analysis.denoiser"

// A quadratic follows spectrum curvature without ringing.
const denoiserPolyOrder = 2

// DenoiserConfig holds the denoiser's initial property values.
type DenoiserConfig struct {
	Strength int `mapstructure:"strength"`
}

func (c DenoiserConfig) validate() error {
	if c.Strength < 1 || c.Strength > 100 {
		return fmt.Errorf("%w: strength must be between 1 and 100, got %d",
			errors.ErrSchema, c.Strength)
	}
	return nil
}

// denoiser removes trace hash from a dB spectrum with a Savitzky-Golay
// filter: each bin becomes the centre value of a least-squares quadratic
// fitted over a sliding window. It smooths the trace, not the energy, so
// it acts like the video filter of a hardware analyzer.
type denoiser struct {
	name string

	mu       sync.Mutex
	strength int
	weights  []float64  // convolution taps for interior bins
	fit      *mat.Dense // maps a window to its quadratic coefficients
	bins     int
}

func denoiserSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in-db", Type: block.TypeSpectrum, Description: "spectrum in dB"},
		},
		Outputs: []block.PortSpec{
			{Name: "out-db", Type: block.TypeSpectrum, Description: "denoised spectrum in dB"},
		},
		Properties: []block.PropertySpec{
			{Name: "strength", Default: 1, Description: "filter window factor, 1 to 100"},
		},
	}
}

func newDenoiserBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := DenoiserConfig{Strength: 1}
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newDenoiserBlock", "config decoding")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WrapInvalid(err, name, "newDenoiserBlock", "config validation")
	}

	strategy := &denoiser{name: name, strength: cfg.Strength}
	if err := strategy.rebuildFilter(); err != nil {
		return nil, err
	}

	b, err := block.New(name, TypeDenoiser, denoiserSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	if err := b.SetProperty("strength", cfg.Strength); err != nil {
		return nil, err
	}
	return b, nil
}

// rebuildFilter derives the filter from the strength: window length
// 3+2*strength (always odd), quadratic fit. The taps come from the
// pseudo-inverse of the window's Vandermonde matrix. Caller holds d.mu or
// has exclusive access.
func (d *denoiser) rebuildFilter() error {
	length := 3 + 2*d.strength
	half := length / 2

	a := mat.NewDense(length, denoiserPolyOrder+1, nil)
	for i := 0; i < length; i++ {
		x := float64(i - half)
		a.Set(i, 0, 1)
		a.Set(i, 1, x)
		a.Set(i, 2, x*x)
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return errors.WrapFault(err, d.name, "rebuildFilter", "normal matrix inversion")
	}

	fit := &mat.Dense{}
	fit.Mul(&inv, a.T())
	d.fit = fit
	d.weights = mat.Row(nil, 0, fit)
	return nil
}

func (d *denoiser) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected *media.Frame, got %T", errors.ErrTypeMismatch, value),
			d.name, "OnInputReceived", "value handling")
	}

	d.mu.Lock()
	// no format seen yet, window length is meaningless
	if d.bins == 0 {
		d.mu.Unlock()
		return nil
	}

	out := frame.Clone()
	for ch := range frame.Data {
		trace := frame.Data[ch]
		if len(trace) != d.bins {
			d.mu.Unlock()
			return errors.WrapInvalid(
				fmt.Errorf("%w: spectrum has %d bins, format declares %d",
					errors.ErrTypeMismatch, len(trace), d.bins),
				d.name, "OnInputReceived", "bin count check")
		}
		// DC passes through untouched so its large negative value cannot
		// drag down the low bins
		if len(trace) > 1 {
			copy(out.Data[ch][1:], d.smoothTrace(trace[1:]))
		}
	}
	d.mu.Unlock()
	return exec.Emit("out-db", out)
}

// smoothTrace filters one DC-less trace. Interior bins are a plain
// convolution with the centre taps; edge bins evaluate the quadratic fitted
// to the outermost full window. Traces shorter than the window pass
// through. Caller holds d.mu.
func (d *denoiser) smoothTrace(trace []float64) []float64 {
	length := len(d.weights)
	half := length / 2
	out := make([]float64, len(trace))
	if len(trace) < length {
		copy(out, trace)
		return out
	}

	for k := half; k < len(trace)-half; k++ {
		var sum float64
		for i, w := range d.weights {
			sum += w * trace[k-half+i]
		}
		out[k] = sum
	}

	head := d.fitWindow(trace[:length])
	for k := 0; k < half; k++ {
		out[k] = evalQuadratic(head, float64(k-half))
	}
	tail := d.fitWindow(trace[len(trace)-length:])
	centre := len(trace) - 1 - half
	for k := len(trace) - half; k < len(trace); k++ {
		out[k] = evalQuadratic(tail, float64(k-centre))
	}
	return out
}

// fitWindow returns the quadratic coefficients fitted to one full window.
// Caller holds d.mu.
func (d *denoiser) fitWindow(window []float64) [denoiserPolyOrder + 1]float64 {
	var coeffs [denoiserPolyOrder + 1]float64
	for row := range coeffs {
		var sum float64
		for i, v := range window {
			sum += d.fit.At(row, i) * v
		}
		coeffs[row] = sum
	}
	return coeffs
}

func evalQuadratic(c [denoiserPolyOrder + 1]float64, x float64) float64 {
	return c[0] + c[1]*x + c[2]*x*x
}

// OnFormatChanged implements block.FormatWatcher.
func (d *denoiser) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	d.mu.Lock()
	d.bins = format.BlockSize
	d.mu.Unlock()

	out := format.Clone()
	if out != nil {
		out.Name = d.name
	}
	return exec.SetFormat("out-db", out)
}

// OnPropertyChanged implements block.PropertyWatcher: a strength change
// rebuilds the filter taps.
func (d *denoiser) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	if name != "strength" {
		return nil
	}
	cfg := DenoiserConfig{}
	if err := mapstructure.Decode(map[string]any{"strength": value}, &cfg); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), d.name, "OnPropertyChanged", "property decoding")
	}
	if err := cfg.validate(); err != nil {
		return errors.WrapInvalid(err, d.name, "OnPropertyChanged", "property validation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.strength = cfg.Strength
	return d.rebuildFilter()
}
