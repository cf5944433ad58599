package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
	"github.com/Steve19802/workbench/pkg/ringbuf"
	"github.com/Steve19802/workbench/pkg/scaling"
	"github.com/Steve19802/workbench/pkg/trigger"
)

// TypeScope identifies the scope sink block.
const TypeScope = "sink.scope"

// Scope display modes.
const (
	ScopeModeTime     = "time"
	ScopeModeSpectrum = "spectrum"
)

// ScopeConfig holds the scope's initial property values.
type ScopeConfig struct {
	Mode    string `mapstructure:"mode"`
	History int    `mapstructure:"history"`
}

// Scope is the terminal display sink: it keeps a per-channel sample history
// and derives a stable, scaled view window from it using its trigger and
// scale controllers. The current view is read with Window and Range.
type Scope struct {
	name string

	mu       sync.Mutex
	history  []*ringbuf.Ring[float64]
	capacity int
	format   *media.Info
	rng      scaling.Range

	// ctlMu serializes controller access; the controllers themselves are
	// not safe for concurrent use. Never held together with mu.
	ctlMu   sync.Mutex
	trigger *trigger.Controller
	scale   *scaling.Controller
}

func scopeSchema() block.Schema {
	return block.Schema{
		Inputs: []block.PortSpec{
			{Name: "in", Type: block.TypeAny, Description: "frames to display"},
		},
		Properties: []block.PropertySpec{
			{Name: "mode", Default: ScopeModeTime},
			{Name: "history", Default: 8192, Description: "per-channel history length in samples"},
			{Name: "trigger.level", Default: 0.5},
			{Name: "trigger.slope", Default: string(trigger.SlopePositive)},
			{Name: "trigger.channel", Default: 0},
			{Name: "scale.mode", Default: string(scaling.ModeAutomatic)},
			{Name: "scale.min", Default: -1.0},
			{Name: "scale.max", Default: 1.0},
		},
	}
}

func newScopeBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := ScopeConfig{Mode: ScopeModeTime, History: 8192}
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newScopeBlock", "config decoding")
	}
	if cfg.History <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: history must be positive, got %d", errors.ErrSchema, cfg.History),
			name, "newScopeBlock", "config validation")
	}
	switch cfg.Mode {
	case ScopeModeTime, ScopeModeSpectrum:
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown scope mode %q", errors.ErrSchema, cfg.Mode),
			name, "newScopeBlock", "config validation")
	}

	strategy := &Scope{name: name, capacity: cfg.History}
	strategy.trigger = trigger.NewController(nil)
	strategy.scale = scaling.NewController(func(r scaling.Range) {
		strategy.mu.Lock()
		strategy.rng = r
		strategy.mu.Unlock()
	})

	b, err := block.New(name, TypeScope, scopeSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	if err := b.SetProperty("mode", cfg.Mode); err != nil {
		return nil, err
	}
	if err := b.SetProperty("history", cfg.History); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Scope) OnInputReceived(_ context.Context, _ block.Exec, _ string, value any) error {
	frame, ok := value.(*media.Frame)
	if !ok {
		// scalar traces are displayed as single-channel history
		if v, isFloat := value.(float64); isFloat {
			frame = media.NewFrame(1, 1)
			frame.Data[0][0] = v
		} else {
			return errors.WrapInvalid(
				fmt.Errorf("%w: unsupported value type %T", errors.ErrTypeMismatch, value),
				s.name, "OnInputReceived", "value handling")
		}
	}
	if frame.Channels() == 0 || frame.Samples() == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty frame", errors.ErrTypeMismatch),
			s.name, "OnInputReceived", "frame shape check")
	}

	s.mu.Lock()
	if len(s.history) != frame.Channels() {
		s.history = make([]*ringbuf.Ring[float64], frame.Channels())
		for ch := range s.history {
			s.history[ch], _ = ringbuf.New[float64](s.capacity)
		}
	}
	for ch := range frame.Data {
		s.history[ch].PushAll(frame.Data[ch])
	}
	s.mu.Unlock()

	s.ctlMu.Lock()
	s.scale.Update(frame.Data[0])
	s.ctlMu.Unlock()
	return nil
}

// OnFormatChanged implements block.FormatWatcher.
func (s *Scope) OnFormatChanged(_ block.Exec, _ string, format *media.Info) error {
	s.mu.Lock()
	s.format = format
	s.mu.Unlock()
	return nil
}

// OnPropertyChanged implements block.PropertyWatcher, routing trigger and
// scale properties to their controllers.
func (s *Scope) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	if name == "history" {
		capacity, ok := value.(int)
		if !ok || capacity <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: history must be a positive int", errors.ErrSchema),
				s.name, "OnPropertyChanged", "property validation")
		}
		s.mu.Lock()
		s.capacity = capacity
		s.history = nil
		s.mu.Unlock()
		return nil
	}

	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	switch name {
	case "trigger.level":
		if v, ok := value.(float64); ok {
			s.trigger.SetLevel(v)
		}
	case "trigger.slope":
		if v, ok := value.(string); ok {
			s.trigger.SetSlope(trigger.Slope(v))
		}
	case "trigger.channel":
		if v, ok := value.(int); ok {
			s.trigger.SetChannel(v)
		}
	case "scale.mode":
		if v, ok := value.(string); ok {
			s.scale.SetMode(scaling.Mode(v))
		}
	case "scale.min":
		if v, ok := value.(float64); ok {
			s.scale.SetManualRange(v, s.scale.ManualRange().Max)
		}
	case "scale.max":
		if v, ok := value.(float64); ok {
			s.scale.SetManualRange(s.scale.ManualRange().Min, v)
		}
	}
	return nil
}

// Window returns up to n of the newest samples per channel, aligned on the
// trigger position so repetitive waveforms render steadily.
func (s *Scope) Window(n int) [][]float64 {
	s.mu.Lock()
	snapshot := make([][]float64, len(s.history))
	for ch := range s.history {
		snapshot[ch] = s.history[ch].Snapshot()
	}
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	s.ctlMu.Lock()
	offset := s.trigger.FindIndex(snapshot)
	s.ctlMu.Unlock()
	window := make([][]float64, len(snapshot))
	for ch := range snapshot {
		samples := snapshot[ch][offset:]
		if n < len(samples) {
			samples = samples[:n]
		}
		window[ch] = samples
	}
	return window
}

// Range returns the axis range the scale controller last announced.
func (s *Scope) Range() scaling.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng
}

// Format returns the last format delivered to the scope input.
func (s *Scope) Format() *media.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}
