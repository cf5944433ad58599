package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel(t *testing.T) {
	ch := NewChannel("left", "V")
	assert.Equal(t, "left", ch.Name)
	assert.Equal(t, "V", ch.Unit)

	generated := NewChannel("", "")
	assert.NotEmpty(t, generated.Name)
	assert.Contains(t, generated.Name, "ch-")
}

func TestInfoClone(t *testing.T) {
	info := New()
	info.SampleRate = 48000
	info.BlockSize = 960
	info.Channels = []Channel{NewChannel("Ch0", "")}
	info.Metadata["fft_size"] = 4096

	clone := info.Clone()
	require.NotSame(t, info, clone)
	assert.Equal(t, info.SampleRate, clone.SampleRate)
	assert.Equal(t, info.BlockSize, clone.BlockSize)
	assert.Equal(t, info.Channels, clone.Channels)
	assert.Equal(t, 4096, clone.Metadata["fft_size"])

	// Mutating the clone must not leak into the original
	clone.Channels[0].Name = "renamed"
	clone.Metadata["fft_size"] = 8192
	assert.Equal(t, "Ch0", info.Channels[0].Name)
	assert.Equal(t, 4096, info.Metadata["fft_size"])

	var nilInfo *Info
	assert.Nil(t, nilInfo.Clone())
}

func TestFrameShape(t *testing.T) {
	f := NewFrame(2, 4)
	assert.Equal(t, 2, f.Channels())
	assert.Equal(t, 4, f.Samples())

	empty := &Frame{}
	assert.Equal(t, 0, empty.Channels())
	assert.Equal(t, 0, empty.Samples())
}

func TestFrameClone(t *testing.T) {
	f := NewFrame(1, 3)
	f.Data[0][1] = 0.5

	clone := f.Clone()
	clone.Data[0][1] = 0.9

	assert.Equal(t, 0.5, f.Data[0][1])
	assert.Equal(t, 0.9, clone.Data[0][1])
}
