package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/media"
)

// TypeGenerator identifies the signal generator block.
const TypeGenerator = "generator.signal"

// Waveform shapes the generator can produce.
const (
	WaveformSine   = "sine"
	WaveformSquare = "square"
)

// GeneratorConfig holds the generator's initial property values.
type GeneratorConfig struct {
	Waveform   string  `mapstructure:"waveform"`
	Frequency  float64 `mapstructure:"frequency"`
	Amplitude  float64 `mapstructure:"amplitude"`
	SampleRate float64 `mapstructure:"samplerate"`
	BlockSize  int     `mapstructure:"blocksize"`
	Channels   int     `mapstructure:"channels"`
}

func defaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Waveform:   WaveformSine,
		Frequency:  1000,
		Amplitude:  1.0,
		SampleRate: 48000,
		BlockSize:  960,
		Channels:   1,
	}
}

func (c GeneratorConfig) validate() error {
	switch c.Waveform {
	case WaveformSine, WaveformSquare:
	default:
		return fmt.Errorf("%w: unknown waveform %q", errors.ErrSchema, c.Waveform)
	}
	if c.Frequency <= 0 || c.SampleRate <= 0 || c.Amplitude < 0 {
		return fmt.Errorf("%w: frequency, samplerate must be positive and amplitude non-negative",
			errors.ErrSchema)
	}
	if c.BlockSize <= 0 || c.Channels <= 0 {
		return fmt.Errorf("%w: blocksize and channels must be positive", errors.ErrSchema)
	}
	return nil
}

// generator is a producer strategy: a worker goroutine emits one frame of
// the configured waveform every block interval. Property changes mark the
// parameters dirty; the worker picks them up at the next frame boundary
// without a restart.
type generator struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	cfg   GeneratorConfig
	dirty bool
	phase float64

	cancel context.CancelFunc
	done   chan struct{}
}

func generatorSchema() block.Schema {
	cfg := defaultGeneratorConfig()
	return block.Schema{
		Outputs: []block.PortSpec{
			{Name: "out", Type: block.TypeSamples, Description: "generated sample frames"},
		},
		Properties: []block.PropertySpec{
			{Name: "waveform", Default: cfg.Waveform},
			{Name: "frequency", Default: cfg.Frequency},
			{Name: "amplitude", Default: cfg.Amplitude},
			{Name: "samplerate", Default: cfg.SampleRate},
			{Name: "blocksize", Default: cfg.BlockSize},
			{Name: "channels", Default: cfg.Channels},
		},
	}
}

func newGeneratorBlock(name string, properties map[string]any, logger *slog.Logger) (*block.Block, error) {
	cfg := defaultGeneratorConfig()
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), name, "newGeneratorBlock", "config decoding")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WrapInvalid(err, name, "newGeneratorBlock", "config validation")
	}

	strategy := &generator{name: name, cfg: cfg, logger: logger}
	b, err := block.New(name, TypeGenerator, generatorSchema(), strategy, logger)
	if err != nil {
		return nil, err
	}
	for property, value := range map[string]any{
		"waveform":   cfg.Waveform,
		"frequency":  cfg.Frequency,
		"amplitude":  cfg.Amplitude,
		"samplerate": cfg.SampleRate,
		"blocksize":  cfg.BlockSize,
		"channels":   cfg.Channels,
	} {
		if err := b.SetProperty(property, value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// OnInputReceived implements block.Strategy. The generator has no inputs.
func (g *generator) OnInputReceived(context.Context, block.Exec, string, any) error {
	return nil
}

// OnPropertyChanged implements block.PropertyWatcher: the new value is
// folded into the configuration and the worker regenerates at the next
// frame.
func (g *generator) OnPropertyChanged(_ block.Emitter, name string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := mapstructure.Decode(map[string]any{name: value}, &g.cfg); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrSchema, err), g.name, "OnPropertyChanged", "property decoding")
	}
	if err := g.cfg.validate(); err != nil {
		return errors.WrapInvalid(err, g.name, "OnPropertyChanged", "property validation")
	}
	g.dirty = true
	return nil
}

// Start implements block.Runnable.
func (g *generator) Start(ctx context.Context, em block.Emitter) error {
	g.mu.Lock()
	if g.done != nil {
		g.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, g.name, "Start", "state check")
	}
	cfg := g.cfg
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	if err := em.SetFormat("out", g.format(cfg)); err != nil {
		return err
	}

	go g.run(ctx, em, cfg, done)
	return nil
}

// Stop implements block.Runnable.
func (g *generator) Stop(timeout time.Duration) error {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, g.name, "Stop", "state check")
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapFault(
			fmt.Errorf("worker did not stop within %s", timeout), g.name, "Stop", "worker join")
	}
}

func (g *generator) run(ctx context.Context, em block.Emitter, cfg GeneratorConfig, done chan struct{}) {
	defer close(done)

	interval := time.Duration(float64(cfg.BlockSize) / cfg.SampleRate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		if g.dirty {
			g.dirty = false
			if g.cfg.BlockSize != cfg.BlockSize || g.cfg.SampleRate != cfg.SampleRate {
				ticker.Reset(time.Duration(
					float64(g.cfg.BlockSize) / g.cfg.SampleRate * float64(time.Second)))
			}
			cfg = g.cfg
			if err := em.SetFormat("out", g.format(cfg)); err != nil {
				g.logger.Warn("format update failed", "block", g.name, "error", err)
			}
		}
		frame := g.nextFrame(cfg)
		g.mu.Unlock()

		if err := em.Emit("out", frame); err != nil {
			g.logger.Warn("frame emission failed", "block", g.name, "error", err)
		}
	}
}

// nextFrame synthesizes one frame, advancing the phase accumulator so
// consecutive frames are continuous. Caller holds g.mu.
func (g *generator) nextFrame(cfg GeneratorConfig) *media.Frame {
	frame := media.NewFrame(cfg.Channels, cfg.BlockSize)
	step := cfg.Frequency / cfg.SampleRate

	phase := g.phase
	for i := 0; i < cfg.BlockSize; i++ {
		var v float64
		switch cfg.Waveform {
		case WaveformSquare:
			if math.Mod(phase, 1.0) < 0.5 {
				v = cfg.Amplitude
			} else {
				v = -cfg.Amplitude
			}
		default:
			v = cfg.Amplitude * math.Sin(2*math.Pi*phase)
		}
		for ch := 0; ch < cfg.Channels; ch++ {
			frame.Data[ch][i] = v
		}
		phase += step
	}
	g.phase = math.Mod(phase, 1.0)
	frame.Info = g.format(cfg)
	return frame
}

func (g *generator) format(cfg GeneratorConfig) *media.Info {
	info := media.New()
	info.Name = g.name
	info.SampleRate = cfg.SampleRate
	info.BlockSize = cfg.BlockSize
	for ch := 0; ch < cfg.Channels; ch++ {
		info.Channels = append(info.Channels, media.NewChannel(fmt.Sprintf("Ch%d", ch), ""))
	}
	return info
}
