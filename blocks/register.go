package blocks

import "github.com/Steve19802/workbench/block"

// RegisterAll adds every built-in block type to the registry.
func RegisterAll(r *block.Registry) error {
	registrations := []*block.Registration{
		{
			TypeID:      TypeGenerator,
			Description: "Periodic waveform producer",
			Version:     "1.0.0",
			Schema:      generatorSchema(),
			Factory:     newGeneratorBlock,
		},
		{
			TypeID:      TypeGain,
			Description: "Multiplies values by a factor",
			Version:     "1.0.0",
			Schema:      gainSchema(),
			Factory:     newGainBlock,
		},
		{
			TypeID:      TypeMixer,
			Description: "Sums two inputs",
			Version:     "1.0.0",
			Schema:      mixerSchema(),
			Factory:     newMixerBlock,
		},
		{
			TypeID:      TypeFFT,
			Description: "Magnitude spectrum analyzer",
			Version:     "1.0.0",
			Schema:      fftSchema(),
			Factory:     newFFTBlock,
		},
		{
			TypeID:      TypeSmoother,
			Description: "Fractional-octave spectrum smoothing",
			Version:     "1.0.0",
			Schema:      smootherSchema(),
			Factory:     newSmootherBlock,
		},
		{
			TypeID:      TypeResponse,
			Description: "Frequency response measurement",
			Version:     "1.0.0",
			Schema:      responseSchema(),
			Factory:     newResponseBlock,
		},
		{
			TypeID:      TypeDenoiser,
			Description: "Savitzky-Golay trace denoising",
			Version:     "1.0.0",
			Schema:      denoiserSchema(),
			Factory:     newDenoiserBlock,
		},
		{
			TypeID:      TypeCurve,
			Description: "Spline curve smoothing",
			Version:     "1.0.0",
			Schema:      curveSchema(),
			Factory:     newCurveBlock,
		},
		{
			TypeID:      TypeScope,
			Description: "Display sink with trigger and scaling",
			Version:     "1.0.0",
			Schema:      scopeSchema(),
			Factory:     newScopeBlock,
		},
	}

	for _, registration := range registrations {
		if err := r.Register(registration); err != nil {
			return err
		}
	}
	return nil
}
