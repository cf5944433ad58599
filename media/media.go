// Package media describes the format of the sample streams flowing between
// blocks: sample rate, block size, and per-channel metadata. A format travels
// alongside port data: it is delivered to an input port when a connection is
// made and again whenever the source block reconfigures its output.
package media

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Channel describes a single channel within a stream.
type Channel struct {
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// NewChannel creates a channel description. An empty name gets a unique
// generated one.
func NewChannel(name, unit string) Channel {
	if name == "" {
		name = fmt.Sprintf("ch-%s", uuid.NewString())
	}
	return Channel{Name: name, Unit: unit}
}

// Info describes the format of a stream emitted by an output port.
type Info struct {
	Name       string         `json:"name" yaml:"name"`
	SampleRate float64        `json:"sample_rate" yaml:"sample_rate"`
	BlockSize  int            `json:"block_size" yaml:"block_size"`
	Channels   []Channel      `json:"channels" yaml:"channels"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// New creates an Info with a unique generated name.
func New() *Info {
	return &Info{
		Name:     fmt.Sprintf("media-%s", uuid.NewString()),
		Metadata: make(map[string]any),
	}
}

// ChannelCount returns the number of channels in the stream.
func (i *Info) ChannelCount() int {
	return len(i.Channels)
}

// Clone returns a deep copy so downstream blocks can derive their output
// format without mutating the upstream one.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	clone := &Info{
		Name:       i.Name,
		SampleRate: i.SampleRate,
		BlockSize:  i.BlockSize,
		Channels:   make([]Channel, len(i.Channels)),
		Metadata:   make(map[string]any, len(i.Metadata)),
	}
	copy(clone.Channels, i.Channels)
	for k, v := range i.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// String renders the format for logs and diagnostics.
func (i *Info) String() string {
	if i == nil {
		return "media.Info(nil)"
	}
	names := make([]string, len(i.Channels))
	for n, ch := range i.Channels {
		names[n] = ch.Name
	}
	return fmt.Sprintf("media %s: samplerate=%g blocksize=%d channels=[%s]",
		i.Name, i.SampleRate, i.BlockSize, strings.Join(names, ", "))
}

// Frame is one block of multi-channel samples: Data[channel][sample].
// Frames are the values generator and processing blocks exchange through
// ports.
type Frame struct {
	Data [][]float64
	Info *Info
}

// NewFrame allocates a zeroed frame of the given shape.
func NewFrame(channels, samples int) *Frame {
	data := make([][]float64, channels)
	for i := range data {
		data[i] = make([]float64, samples)
	}
	return &Frame{Data: data}
}

// Channels returns the number of channels in the frame.
func (f *Frame) Channels() int {
	return len(f.Data)
}

// Samples returns the number of samples per channel, 0 for an empty frame.
func (f *Frame) Samples() int {
	if len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// Clone returns a deep copy of the frame sharing the format reference.
func (f *Frame) Clone() *Frame {
	clone := &Frame{
		Data: make([][]float64, len(f.Data)),
		Info: f.Info,
	}
	for i, ch := range f.Data {
		clone.Data[i] = make([]float64, len(ch))
		copy(clone.Data[i], ch)
	}
	return clone
}
