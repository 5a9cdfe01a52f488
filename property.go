package avpipe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Stable pad property keys. Converters and sinks negotiate through the
// presence of these entries on the downstream pad.
const (
	PropPixelFormat      = "PixelFormat"
	PropPixelFormatList  = "PixelFormatList"
	PropSampleFormat     = "SampleFormat"
	PropSampleFormatList = "SampleFormatList"
	PropSampleRate       = "SampleRate"
	PropChannels         = "Channels"
	PropWidth            = "Width"
	PropHeight           = "Height"
	PropDuration         = "Duration" // seconds
	PropMetadata         = "Metadata" // map
	PropTitle            = "Title"
	PropHTTPUserAgent    = "HttpUserAgent"
	PropHTTPReferer      = "HttpReferer"
)

// PropertyKind tags the active variant of a [Property].
type PropertyKind int

const (
	KindNull PropertyKind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindList
	KindMap
)

// A Property is a recursive tagged value: null, bool, integer, double,
// string, ordered list of properties, or map from string to property.
// The zero value is null. Properties are value types; [Property.Clone]
// deep-copies lists and maps.
type Property struct {
	kind PropertyKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Property
	m    map[string]Property
}

// --- constructors ---

func NewNullProperty() Property          { return Property{} }
func NewBoolProperty(v bool) Property    { return Property{kind: KindBool, b: v} }
func NewIntProperty(v int64) Property    { return Property{kind: KindInt, i: v} }
func NewFloatProperty(v float64) Property {
	return Property{kind: KindDouble, f: v}
}
func NewStringProperty(v string) Property { return Property{kind: KindString, s: v} }

// NewListProperty builds a list property from the given items.
func NewListProperty(items ...Property) Property {
	list := make([]Property, len(items))
	copy(list, items)
	return Property{kind: KindList, list: list}
}

// NewMapProperty builds an empty map property.
func NewMapProperty() Property {
	return Property{kind: KindMap, m: make(map[string]Property)}
}

// --- kind predicates ---

func (p Property) Kind() PropertyKind { return p.kind }
func (p Property) IsNull() bool       { return p.kind == KindNull }
func (p Property) IsBool() bool       { return p.kind == KindBool }
func (p Property) IsInt() bool        { return p.kind == KindInt }
func (p Property) IsDouble() bool     { return p.kind == KindDouble }
func (p Property) IsString() bool     { return p.kind == KindString }
func (p Property) IsList() bool       { return p.kind == KindList }
func (p Property) IsMap() bool        { return p.kind == KindMap }

// --- accessors (coercing between the numeric kinds) ---

func (p Property) Bool() bool {
	switch p.kind {
	case KindBool:
		return p.b
	case KindInt:
		return p.i != 0
	default:
		return false
	}
}

func (p Property) Int() int64 {
	switch p.kind {
	case KindInt:
		return p.i
	case KindDouble:
		return int64(p.f)
	case KindBool:
		if p.b {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func (p Property) Float() float64 {
	switch p.kind {
	case KindDouble:
		return p.f
	case KindInt:
		return float64(p.i)
	default:
		return 0
	}
}

func (p Property) Str() string {
	if p.kind == KindString {
		return p.s
	}
	return ""
}

// List returns the underlying slice (nil unless the property is a list).
func (p Property) List() []Property { return p.list }

// Map returns the underlying map (nil unless the property is a map).
func (p Property) Map() map[string]Property { return p.m }

// Len returns the number of entries of a list or map property.
func (p Property) Len() int {
	switch p.kind {
	case KindList:
		return len(p.list)
	case KindMap:
		return len(p.m)
	default:
		return 0
	}
}

// --- list and map operations ---

// Append adds an item to a list property. Appending to a null property
// turns it into a list first.
func (p *Property) Append(item Property) {
	if p.kind == KindNull {
		*p = NewListProperty()
	}
	if p.kind != KindList {
		return
	}
	p.list = append(p.list, item)
}

// Index returns the n-th item of a list property, or a null property when
// out of range.
func (p Property) Index(n int) Property {
	if p.kind != KindList || n < 0 || n >= len(p.list) {
		return Property{}
	}
	return p.list[n]
}

// Set inserts a key into a map property. Setting on a null property turns
// it into a map first.
func (p *Property) Set(key string, value Property) {
	if p.kind == KindNull {
		*p = NewMapProperty()
	}
	if p.kind != KindMap {
		return
	}
	p.m[key] = value
}

// At returns the value under a key of a map property, or a null property.
func (p Property) At(key string) Property {
	if p.kind != KindMap {
		return Property{}
	}
	return p.m[key]
}

// Keys returns the map keys in sorted order, giving deterministic
// iteration for the ordered-map contract.
func (p Property) Keys() []string {
	if p.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContainsKey reports whether a map property holds the given key.
func (p Property) ContainsKey(key string) bool {
	if p.kind != KindMap {
		return false
	}
	_, ok := p.m[key]
	return ok
}

// Contains reports whether a list property holds an item equal to v.
func (p Property) Contains(v Property) bool {
	if p.kind != KindList {
		return false
	}
	for _, item := range p.list {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

// Equal compares two properties structurally.
func (p Property) Equal(other Property) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case KindNull:
		return true
	case KindBool:
		return p.b == other.b
	case KindInt:
		return p.i == other.i
	case KindDouble:
		return p.f == other.f
	case KindString:
		return p.s == other.s
	case KindList:
		if len(p.list) != len(other.list) {
			return false
		}
		for i := range p.list {
			if !p.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(p.m) != len(other.m) {
			return false
		}
		for k, v := range p.m {
			ov, ok := other.m[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone deep-copies the property, detaching lists and maps.
func (p Property) Clone() Property {
	switch p.kind {
	case KindList:
		out := Property{kind: KindList, list: make([]Property, len(p.list))}
		for i := range p.list {
			out.list[i] = p.list[i].Clone()
		}
		return out
	case KindMap:
		out := NewMapProperty()
		for k, v := range p.m {
			out.m[k] = v.Clone()
		}
		return out
	default:
		return p
	}
}

// Returns a compact document form of the property, mostly for topology
// dumps and logs.
func (p Property) String() string {
	switch p.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(p.b)
	case KindInt:
		return strconv.FormatInt(p.i, 10)
	case KindDouble:
		return strconv.FormatFloat(p.f, 'g', -1, 64)
	case KindString:
		return p.s
	case KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range p.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMap:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range p.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %s", k, p.m[k].String())
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return ""
}

// NewPixelFormatList builds the list property converters look up under
// [PropPixelFormatList].
func NewPixelFormatList(formats ...PixelFormat) Property {
	list := NewListProperty()
	for _, f := range formats {
		list.Append(NewIntProperty(int64(f)))
	}
	return list
}

// NewSampleFormatList builds the list property converters look up under
// [PropSampleFormatList].
func NewSampleFormatList(formats ...SampleFormat) Property {
	list := NewListProperty()
	for _, f := range formats {
		list.Append(NewIntProperty(int64(f)))
	}
	return list
}
