package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeSmoother identifies the fractional-octave spectrum smoother.
const TypeSmoother = "analysis.smoother"

// SmootherConfig holds the smoother's initial property values.
type SmootherConfig struct {
	Bandwidth float64 `mapstructure:"bandwidth"`
}

// smoother applies fractional-octave smoothing to dB spectra. Smoothing
// happens in the power domain so energy is preserved; the per-bin window
// bounds are precomputed whenever the input format or bandwidth changes.
type smoother struct {
	name string

	mu        sync.Mutex
	bandwidth float64
	left      []int
	right     []int
	format    *media.Info
}

func smootherSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in-db", Type: block.TypeSpectrum, Description: "spectrum in dB"},
		},
		Outputs: []block.PortSpec{
			{Name: "out-db", Type: block.TypeSpectrum, Description: "smoothed spectrum in dB"},
		},
		Properties: []block.PropertySpec{
			{Name: "bandwidth", Default: 1.0 / 3.0, Description: "smoothing bandwidth in octaves"},
		},
	}
}

func newSmootherBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := SmootherConfig{Bandwidth: 1.0 / 3.0}
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newSmootherBlock", "config decoding")
	}
	if cfg.Bandwidth <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bandwidth must be positive, got %g", errors.ErrSchema, cfg.Bandwidth),
			name, "newSmootherBlock", "config validation")
	}

	strategy := &smoother{name: name, bandwidth: cfg.Bandwidth}
	b, err := block.New(name, TypeSmoother, smootherSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	if err := b.SetProperty("bandwidth", cfg.Bandwidth); err != nil {
		return nil, err
	}
	return b, nil
}

// rebuildWindows recomputes the per-bin averaging bounds for the current
// format and bandwidth. Caller holds s.mu.
func (s *smoother) rebuildWindows() {
	if s.format == nil || s.format.BlockSize == 0 {
		s.left, s.right = nil, nil
		return
	}

	bins := s.format.BlockSize
	s.left = make([]int, bins)
	s.right = make([]int, bins)

	alpha := math.Pow(2, s.bandwidth/2) - math.Pow(2, -s.bandwidth/2)
	for k := 0; k < bins; k++ {
		// at least 3 bins wide so the lowest bins get smoothed too
		width := math.Max(float64(k)*alpha, 3.0)
		half := int(math.Floor(width / 2))

		left := k - half
		right := k + half
		// never average DC into higher bins
		if k > 0 && left < 1 {
			left = 1
		}
		s.left[k] = clampInt(left, 0, bins-1)
		s.right[k] = clampInt(right, 0, bins-1)
	}
}

func (s *smoother) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected *media.Frame, got %T", errors.ErrTypeMismatch, value),
			s.name, "OnInputReceived", "value handling")
	}

	s.mu.Lock()
	left, right := s.left, s.right
	s.mu.Unlock()

	// no format seen yet, nothing to smooth against
	if left == nil {
		return nil
	}

	out := frame.Clone()
	for ch := range frame.Data {
		spectrum := frame.Data[ch]
		if len(spectrum) != len(left) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: spectrum has %d bins, window map expects %d",
					errors.ErrTypeMismatch, len(spectrum), len(left)),
				s.name, "OnInputReceived", "bin count check")
		}

		// dB -> power, prefix sums, windowed mean, back to dB
		integral := make([]float64, len(spectrum)+1)
		for i, db := range spectrum {
			power := math.Pow(10, math.Max(db, -160)/10)
			if math.IsNaN(power) || math.IsInf(power, 0) {
				power = 0
			}
			integral[i+1] = integral[i] + power
		}

		for k := range spectrum {
			sum := integral[right[k]+1] - integral[left[k]]
			size := float64(right[k] - left[k] + 1)
			out.Data[ch][k] = 10 * math.Log10(sum/size+1e-20)
		}
	}
	return exec.Emit("out-db", out)
}

// OnFormatChanged implements block.FormatWatcher.
func (s *smoother) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	s.mu.Lock()
	s.format = format
	s.rebuildWindows()
	s.mu.Unlock()

	out := format.Clone()
	if out != nil {
		out.Name = s.name
	}
	return exec.SetFormat("out-db", out)
}

// OnPropertyChanged implements block.PropertyWatcher: a bandwidth change
// rebuilds the window map.
func (s *smoother) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	if name != "bandwidth" {
		return nil
	}
	bandwidth, ok := value.(float64)
	if !ok || bandwidth <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: bandwidth must be a positive float64", errors.ErrSchema),
			s.name, "OnPropertyChanged", "property validation")
	}

	s.mu.Lock()
	s.bandwidth = bandwidth
	s.rebuildWindows()
	s.mu.Unlock()
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
