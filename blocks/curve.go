package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/interp"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeCurve identifies the spline curve smoother block.
const TypeCurve = "analysis.curve"

// CurveConfig holds the curve smoother's initial property values.
type CurveConfig struct {
	Smoothness float64 `mapstructure:"smoothness"`
	DBFloor    float64 `mapstructure:"db-floor"`
}

func defaultCurveConfig() CurveConfig {
	return CurveConfig{Smoothness: 0.5, DBFloor: -120.0}
}

func (c CurveConfig) validate() error {
	if c.Smoothness < 0 {
		return fmt.Errorf("%w: smoothness must be non-negative, got %g",
			errors.ErrSchema, c.Smoothness)
	}
	return nil
}

// curveSmoother fits a smooth spline through a dB spectrum on a worker
// goroutine so the spline fit never blocks the propagation path. Only the
// most recent frame is kept: frames arriving while a fit is in progress
// replace the pending one, and frames arriving while the mailbox is locked
// are dropped.
type curveSmoother struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	cfg     CurveConfig
	logAxis []float64 // log10 bin frequencies, DC excluded
	bins    int
	latest  *media.Frame

	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func curveSchema() block.Schema {
	cfg := defaultCurveConfig()
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in-db", Type: block.TypeSpectrum, Description: "spectrum in dB"},
		},
		Outputs: []block.PortSpec{
			{Name: "out-db", Type: block.TypeSpectrum, Description: "spline-smoothed spectrum in dB"},
		},
		Properties: []block.PropertySpec{
			{Name: "smoothness", Default: cfg.Smoothness, Description: "spline smoothing factor, 0 disables"},
			{Name: "db-floor", Default: cfg.DBFloor, Description: "clamp for the smoothed output in dB"},
		},
	}
}

func newCurveBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := defaultCurveConfig()
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newCurveBlock", "config decoding")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WrapInvalid(err, name, "newCurveBlock", "config validation")
	}

	strategy := &curveSmoother{
		name:   name,
		logger: logger,
		cfg:    cfg,
		notify: make(chan struct{}, 1),
	}
	b, err := block.New(name, TypeCurve, curveSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	for property, value := range map[string]any{
		"smoothness": cfg.Smoothness,
		"db-floor":   cfg.DBFloor,
	} {
		if err := b.SetProperty(property, value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// OnInputReceived implements block.Strategy. The frame only lands in the
// mailbox; the worker does the fit. A frame arriving while the mailbox is
// contended is dropped rather than blocking the propagation.
func (s *curveSmoother) OnInputReceived(_ context.Context, _ block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected *media.Frame, got %T", errors.ErrTypeMismatch, value),
			s.name, "OnInputReceived", "value handling")
	}

	if !s.mu.TryLock() {
		return nil
	}
	s.latest = frame
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// OnFormatChanged implements block.FormatWatcher: the log-frequency axis
// the spline is fitted against is precomputed here.
func (s *curveSmoother) OnFormatChanged(exec block.Exec, _ string, format *media.Info) error {
	s.mu.Lock()
	s.bins = format.BlockSize
	s.logAxis = nil
	if fftSize, sampleRate := spectrumSource(format); fftSize > 0 && sampleRate > 0 {
		s.logAxis = make([]float64, format.BlockSize-1)
		for k := range s.logAxis {
			s.logAxis[k] = math.Log10(float64(k+1) * sampleRate / float64(fftSize))
		}
	}
	s.mu.Unlock()

	out := format.Clone()
	if out != nil {
		out.Name = s.name
	}
	return exec.SetFormat("out-db", out)
}

// OnPropertyChanged implements block.PropertyWatcher.
func (s *curveSmoother) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if err := mapstructure.Decode(map[string]any{name: value}, &next); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), s.name, "OnPropertyChanged", "property decoding")
	}
	if err := next.validate(); err != nil {
		return errors.WrapInvalid(err, s.name, "OnPropertyChanged", "property validation")
	}
	s.cfg = next
	return nil
}

// Start implements block.Runnable.
func (s *curveSmoother) Start(ctx context.Context, em block.Emitter) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, s.name, "Start", "state check")
	}
	s.latest = nil
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, em, done)
	return nil
}

// Stop implements block.Runnable.
func (s *curveSmoother) Stop(timeout time.Duration) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, s.name, "Stop", "state check")
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapFault(
			fmt.Errorf("worker did not stop within %s", timeout), s.name, "Stop", "worker join")
	}
}

func (s *curveSmoother) run(ctx context.Context, em block.Emitter, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		s.mu.Lock()
		frame := s.latest
		s.latest = nil
		out := s.process(frame)
		s.mu.Unlock()

		if out == nil {
			continue
		}
		if err := em.Emit("out-db", out); err != nil {
			s.logger.Warn("smoothed frame emission failed", "block", s.name, "error", err)
		}
	}
}

// process fits the spline per channel, passes DC through, and clamps the
// result at the dB floor. Frames that do not match the known format are
// dropped. Caller holds s.mu.
func (s *curveSmoother) process(frame *media.Frame) *media.Frame {
	if frame == nil || s.logAxis == nil || s.bins < 2 {
		return nil
	}

	out := frame.Clone()
	for ch := range frame.Data {
		trace := frame.Data[ch]
		if len(trace) != s.bins {
			return nil
		}
		if smooth := s.fitSpline(trace[1:]); smooth != nil {
			copy(out.Data[ch][1:], smooth)
		}
	}
	for _, chData := range out.Data {
		for i, v := range chData {
			if v < s.cfg.DBFloor {
				chData[i] = s.cfg.DBFloor
			}
		}
	}
	return out
}

// fitSpline smooths one DC-less trace: the bins are averaged into knots
// along the log-frequency axis and an Akima spline through the knot
// centres is evaluated back at every bin. Smoothness 0 leaves the trace
// untouched; larger values use fewer knots. Caller holds s.mu.
func (s *curveSmoother) fitSpline(trace []float64) []float64 {
	passthrough := func() []float64 {
		out := make([]float64, len(trace))
		copy(out, trace)
		return out
	}
	if s.cfg.Smoothness == 0 {
		return passthrough()
	}

	knots := int(float64(len(trace)) / (1 + s.cfg.Smoothness*16))
	if knots < 5 {
		knots = 5
	}
	if knots >= len(trace) {
		return passthrough()
	}

	xs := make([]float64, knots)
	ys := make([]float64, knots)
	for k := 0; k < knots; k++ {
		lo := k * len(trace) / knots
		hi := (k + 1) * len(trace) / knots
		var sx, sy float64
		for i := lo; i < hi; i++ {
			sx += s.logAxis[i]
			sy += trace[i]
		}
		n := float64(hi - lo)
		xs[k] = sx / n
		ys[k] = sy / n
	}

	var spline interp.AkimaSpline
	if err := spline.Fit(xs, ys); err != nil {
		return nil
	}
	out := make([]float64, len(trace))
	for i := range trace {
		out[i] = spline.Predict(s.logAxis[i])
	}
	return out
}
