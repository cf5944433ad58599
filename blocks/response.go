package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/interp"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeResponse identifies the frequency response analyzer block.
const TypeResponse = "analysis.response"

// Frequency response measurement modes.
const (
	ResponseModePinkNoise = "pink-noise"
	ResponseModeMultiTone = "multi-tone"
)

const minAveragingTime = 0.1

// ResponseConfig holds the analyzer's initial property values.
type ResponseConfig struct {
	Mode          string  `mapstructure:"mode"`
	AveragingTime float64 `mapstructure:"averaging-time"`
	Calibration   float64 `mapstructure:"calibration-offset"`
}

func defaultResponseConfig() ResponseConfig {
	return ResponseConfig{Mode: ResponseModePinkNoise, AveragingTime: 2.0}
}

func (c ResponseConfig) validate() error {
	switch c.Mode {
	case ResponseModePinkNoise, ResponseModeMultiTone:
	default:
		return fmt.Errorf("%w: unknown response mode %q", errors.ErrSchema, c.Mode)
	}
	if c.AveragingTime < minAveragingTime {
		return fmt.Errorf("%w: averaging-time must be at least %gs, got %g",
			errors.ErrSchema, minAveragingTime, c.AveragingTime)
	}
	return nil
}

// response measures a frequency response from a linear magnitude spectrum.
// In pink-noise mode the power spectrum is averaged over a moving time
// window and tilted by the +10 dB/decade pink correction curve, normalized
// to 0 dB at 1 kHz. In multi-tone mode third-octave tone bins between
// 20 Hz and 20 kHz are sampled and connected by linear interpolation.
type response struct {
	name string

	mu         sync.Mutex
	cfg        ResponseConfig
	format     *media.Info
	correction []float64
	target     int
	window     [][][]float64 // power frames, oldest first
	sums       [][]float64
}

func responseSchema() block.Schema {
	cfg := defaultResponseConfig()
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in-abs", Type: block.TypeSpectrum, Description: "linear magnitude spectrum"},
		},
		Outputs: []block.PortSpec{
			{Name: "out-db", Type: block.TypeSpectrum, Description: "frequency response in dB"},
		},
		Properties: []block.PropertySpec{
			{Name: "mode", Default: cfg.Mode},
			{Name: "averaging-time", Default: cfg.AveragingTime, Description: "moving average length in seconds"},
			{Name: "calibration-offset", Default: cfg.Calibration, Description: "offset added to the output in dB"},
		},
	}
}

func newResponseBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := defaultResponseConfig()
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newResponseBlock", "config decoding")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WrapInvalid(err, name, "newResponseBlock", "config validation")
	}

	strategy := &response{name: name, cfg: cfg, target: 1}
	b, err := block.New(name, TypeResponse, responseSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	for property, value := range map[string]any{
		"mode":               cfg.Mode,
		"averaging-time":     cfg.AveragingTime,
		"calibration-offset": cfg.Calibration,
	} {
		if err := b.SetProperty(property, value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// spectrumSource recovers the analysis parameters behind a spectrum format:
// the FFT size and the sample rate of the audio that fed the analyzer. They
// are read from the metadata the analyzer publishes, falling back to values
// derived from the bin count and the spectrum frame rate.
func spectrumSource(format *media.Info) (fftSize int, sampleRate float64) {
	if format == nil || format.BlockSize < 2 {
		return 0, 0
	}
	fftSize = (format.BlockSize - 1) * 2
	sampleRate = format.SampleRate * float64(fftSize)
	if v, ok := format.Metadata["fft_size"].(int); ok {
		fftSize = v
	}
	if v, ok := format.Metadata["audio_samplerate"].(float64); ok {
		sampleRate = v
	}
	return fftSize, sampleRate
}

// rebuild recomputes the averaging depth and the pink correction curve and
// discards the accumulated average. Caller holds r.mu.
func (r *response) rebuild() {
	r.window, r.sums = nil, nil
	r.correction = nil
	r.target = 1
	if r.format == nil || r.format.BlockSize == 0 {
		return
	}

	// the spectrum frame rate is how many averages fit in a second
	if target := int(r.cfg.AveragingTime * r.format.SampleRate); target > 1 {
		r.target = target
	}

	if r.cfg.Mode != ResponseModePinkNoise {
		return
	}
	fftSize, sampleRate := spectrumSource(r.format)
	if fftSize == 0 || sampleRate <= 0 {
		return
	}
	r.correction = make([]float64, r.format.BlockSize)
	for k := range r.correction {
		freq := float64(k) * sampleRate / float64(fftSize)
		if k == 0 {
			freq = 1e-20
		}
		r.correction[k] = 10 * math.Log10(freq/1000.0)
	}
}

func (r *response) OnInputReceived(_ context.Context, exec block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected *media.Frame, got %T", errors.ErrTypeMismatch, value),
			r.name, "OnInputReceived", "value handling")
	}

	r.mu.Lock()
	var out *media.Frame
	var err error
	switch r.cfg.Mode {
	case ResponseModeMultiTone:
		out, err = r.multiTone(frame)
	default:
		out, err = r.pinkNoise(frame)
	}
	r.mu.Unlock()

	if err != nil || out == nil {
		return err
	}
	return exec.Emit("out-db", out)
}

// pinkNoise folds one power frame into the moving average and returns the
// averaged RMS spectrum in dB with the pink tilt applied. Caller holds r.mu.
func (r *response) pinkNoise(frame *media.Frame) (*media.Frame, error) {
	if r.format == nil {
		return nil, nil
	}
	if len(r.sums) != frame.Channels() {
		r.window = nil
		r.sums = make([][]float64, frame.Channels())
		for ch := range r.sums {
			r.sums[ch] = make([]float64, frame.Samples())
		}
	}

	power := make([][]float64, frame.Channels())
	for ch := range frame.Data {
		if len(frame.Data[ch]) != len(r.sums[ch]) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: spectrum has %d bins, averager expects %d",
					errors.ErrTypeMismatch, len(frame.Data[ch]), len(r.sums[ch])),
				r.name, "pinkNoise", "bin count check")
		}
		power[ch] = make([]float64, len(frame.Data[ch]))
		for i, v := range frame.Data[ch] {
			power[ch][i] = v * v
			r.sums[ch][i] += power[ch][i]
		}
	}

	r.window = append(r.window, power)
	if len(r.window) > r.target {
		oldest := r.window[0]
		r.window = r.window[1:]
		for ch := range oldest {
			for i, v := range oldest[ch] {
				r.sums[ch][i] -= v
			}
		}
	}

	out := frame.Clone()
	out.Info = r.outputFormat()
	count := float64(len(r.window))
	for ch := range r.sums {
		for i, sum := range r.sums[ch] {
			db := 20 * math.Log10(math.Sqrt(sum/count)+1e-20)
			if r.correction != nil {
				db += r.correction[i]
			}
			out.Data[ch][i] = db + r.cfg.Calibration
		}
	}
	return out, nil
}

// multiTone samples the third-octave tone bins and reconstructs the full
// curve by connecting them linearly, so a stepped-sine measurement renders
// as straight segments on a log axis. Caller holds r.mu.
func (r *response) multiTone(frame *media.Frame) (*media.Frame, error) {
	if r.format == nil {
		return nil, nil
	}
	fftSize, sampleRate := spectrumSource(r.format)
	if fftSize == 0 || sampleRate <= 0 {
		return nil, nil
	}

	const (
		fMin           = 20.0
		fMax           = 20000.0
		bandsPerOctave = 3
	)
	bins := r.format.BlockSize
	binWidth := sampleRate / float64(fftSize)
	tones := int(math.Log2(fMax/fMin)*bandsPerOctave) + 1

	// map tone frequencies to bins; coarse spectra collapse neighbours
	indices := make([]int, 0, tones)
	prev := -1
	for t := 0; t < tones; t++ {
		freq := fMin * math.Pow(2, float64(t)/bandsPerOctave)
		idx := clampInt(int(math.Round(freq/binWidth)), 1, bins-1)
		if idx != prev {
			indices = append(indices, idx)
			prev = idx
		}
	}
	if len(indices) < 2 {
		return nil, nil
	}

	xs := make([]float64, len(indices))
	for i, idx := range indices {
		xs[i] = float64(idx) * binWidth
	}

	out := frame.Clone()
	out.Info = r.outputFormat()
	ys := make([]float64, len(indices))
	for ch := range frame.Data {
		if len(frame.Data[ch]) != bins {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: spectrum has %d bins, format declares %d",
					errors.ErrTypeMismatch, len(frame.Data[ch]), bins),
				r.name, "multiTone", "bin count check")
		}
		for i, idx := range indices {
			ys[i] = 20 * math.Log10(frame.Data[ch][idx]+1e-20)
		}

		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, errors.WrapFault(err, r.name, "multiTone", "interpolation fit")
		}
		for k := 0; k < bins; k++ {
			out.Data[ch][k] = pl.Predict(float64(k)*binWidth) + r.cfg.Calibration
		}
	}
	return out, nil
}

// OnFormatChanged implements block.FormatWatcher: a new input format
// rebuilds the correction curve and restarts the average.
func (r *response) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	r.mu.Lock()
	r.format = format
	r.rebuild()
	out := r.outputFormat()
	r.mu.Unlock()

	if out == nil {
		return nil
	}
	return exec.SetFormat("out-db", out)
}

// OnPropertyChanged implements block.PropertyWatcher. Mode and averaging
// changes restart the average; a calibration change applies immediately.
func (r *response) OnPropertyChanged(em block.Emitter, name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cfg
	if err := mapstructure.Decode(map[string]any{name: value}, &next); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), r.name, "OnPropertyChanged", "property decoding")
	}
	if err := next.validate(); err != nil {
		return errors.WrapInvalid(err, r.name, "OnPropertyChanged", "property validation")
	}
	r.cfg = next
	if name != "calibration-offset" {
		r.rebuild()
	}

	if em != nil && r.format != nil {
		return em.SetFormat("out-db", r.outputFormat())
	}
	return nil
}

// outputFormat derives the response format from the input spectrum format.
// Caller holds r.mu.
func (r *response) outputFormat() *media.Info {
	out := r.format.Clone()
	if out == nil {
		return nil
	}
	out.Name = r.name
	out.Metadata["domain"] = "frequency"
	out.Metadata["analysis_mode"] = r.cfg.Mode
	out.Metadata["averaging_time_s"] = r.cfg.AveragingTime
	return out
}
