package avpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleFormatHelpers(t *testing.T) {
	assert.False(t, SampleFormatS16.IsPlanar())
	assert.True(t, SampleFormatS16P.IsPlanar())
	assert.Equal(t, 2, SampleFormatS16.BytesPerSample())
	assert.Equal(t, 4, SampleFormatFLT.BytesPerSample())
	assert.Equal(t, 8, SampleFormatDBLP.BytesPerSample())
	assert.Equal(t, 0, SampleFormatNone.BytesPerSample())
	assert.Equal(t, 4, SampleFormatS16.BytesPerFrame(2))

	assert.Equal(t, SampleFormatS16, SampleFormatS16P.Packed())
	assert.Equal(t, SampleFormatFLTP, SampleFormatFLT.Planar())
	assert.Equal(t, SampleFormatU8, SampleFormatU8.Packed())
	assert.Equal(t, SampleFormatDBLP, SampleFormatDBLP.Planar())
}

func TestPixelFormatHardwareFlag(t *testing.T) {
	assert.False(t, PixelFormatRGBA.IsHardware())
	assert.False(t, PixelFormatYUV420P.IsHardware())
	assert.True(t, PixelFormatD3D11.IsHardware())
	assert.True(t, PixelFormatVAAPI.IsHardware())
}

func TestFormatStrings(t *testing.T) {
	assert.Equal(t, "RGBA", PixelFormatRGBA.String())
	assert.Equal(t, "None", PixelFormatNone.String())
	assert.Equal(t, "S16P", SampleFormatS16P.String())
	assert.Equal(t, "None", SampleFormatNone.String())
}
