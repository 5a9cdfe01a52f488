package avpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyKinds(t *testing.T) {
	assert.True(t, NewNullProperty().IsNull())
	assert.True(t, NewBoolProperty(true).IsBool())
	assert.True(t, NewIntProperty(3).IsInt())
	assert.True(t, NewFloatProperty(2.5).IsDouble())
	assert.True(t, NewStringProperty("x").IsString())
	assert.True(t, NewListProperty().IsList())
	assert.True(t, NewMapProperty().IsMap())
}

func TestPropertyCoercion(t *testing.T) {
	assert.Equal(t, int64(7), NewIntProperty(7).Int())
	assert.Equal(t, 7.0, NewIntProperty(7).Float())
	assert.Equal(t, int64(2), NewFloatProperty(2.9).Int())
	assert.True(t, NewIntProperty(1).Bool())
	assert.Equal(t, int64(1), NewBoolProperty(true).Int())
	assert.Equal(t, "", NewIntProperty(7).Str())
}

func TestPropertyListOps(t *testing.T) {
	list := NewListProperty(NewIntProperty(1), NewIntProperty(2))
	list.Append(NewStringProperty("three"))
	require.Equal(t, 3, list.Len())
	assert.Equal(t, int64(2), list.Index(1).Int())
	assert.True(t, list.Index(5).IsNull())
	assert.True(t, list.Contains(NewStringProperty("three")))
	assert.False(t, list.Contains(NewStringProperty("four")))
}

func TestPropertyAppendPromotesNull(t *testing.T) {
	var p Property
	p.Append(NewIntProperty(1))
	require.True(t, p.IsList())
	assert.Equal(t, 1, p.Len())
}

func TestPropertyMapOps(t *testing.T) {
	m := NewMapProperty()
	m.Set("width", NewIntProperty(1920))
	m.Set("title", NewStringProperty("main"))
	assert.True(t, m.ContainsKey("width"))
	assert.False(t, m.ContainsKey("height"))
	assert.Equal(t, int64(1920), m.At("width").Int())
	assert.True(t, m.At("missing").IsNull())
	assert.Equal(t, []string{"title", "width"}, m.Keys())
}

func TestPropertyEqual(t *testing.T) {
	a := NewListProperty(NewIntProperty(1), NewStringProperty("x"))
	b := NewListProperty(NewIntProperty(1), NewStringProperty("x"))
	c := NewListProperty(NewIntProperty(1))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(NewIntProperty(1)))

	m1 := NewMapProperty()
	m1.Set("k", a)
	m2 := NewMapProperty()
	m2.Set("k", b)
	assert.True(t, m1.Equal(m2))
}

func TestPropertyCloneDetaches(t *testing.T) {
	m := NewMapProperty()
	m.Set("list", NewListProperty(NewIntProperty(1)))
	clone := m.Clone()
	m.Set("extra", NewIntProperty(2))
	assert.False(t, clone.ContainsKey("extra"))
	assert.True(t, clone.ContainsKey("list"))
}

func TestPropertyString(t *testing.T) {
	m := NewMapProperty()
	m.Set("b", NewIntProperty(2))
	m.Set("a", NewBoolProperty(true))
	assert.Equal(t, "{a: true, b: 2}", m.String())
	assert.Equal(t, "[1, x]", NewListProperty(NewIntProperty(1), NewStringProperty("x")).String())
	assert.Equal(t, "null", NewNullProperty().String())
}

func TestFormatListProperties(t *testing.T) {
	list := NewPixelFormatList(PixelFormatRGBA, PixelFormatNV12)
	require.Equal(t, 2, list.Len())
	assert.True(t, list.Contains(NewIntProperty(int64(PixelFormatRGBA))))
	assert.Equal(t, int64(PixelFormatNV12), list.Index(1).Int())

	samples := NewSampleFormatList(SampleFormatS16)
	assert.True(t, samples.Contains(NewIntProperty(int64(SampleFormatS16))))
}
