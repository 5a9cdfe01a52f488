package avpipe

// PixelFormat enumerates raw picture layouts, mirroring the well-known
// codec-library values. Hardware-surface formats carry opaque driver
// handles in their planes and are flagged by [PixelFormat.IsHardware] so
// converters can detect and copy back.
type PixelFormat int

const (
	PixelFormatNone PixelFormat = -1 + iota
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatNV12
	PixelFormatNV21
	PixelFormatRGBA // R8 G8 B8 A8
	PixelFormatBGRA
	PixelFormatARGB
	PixelFormatRGBA64 // R16 G16 B16 A16, native endian
	PixelFormatP010

	// Hardware surfaces: planes hold driver handles, not pixels.
	PixelFormatDXVA2
	PixelFormatD3D11
	PixelFormatVDPAU
	PixelFormatVAAPI
	PixelFormatOpenCL
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatYUV420P:
		return "YUV420P"
	case PixelFormatYUV422P:
		return "YUV422P"
	case PixelFormatYUV444P:
		return "YUV444P"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatNV21:
		return "NV21"
	case PixelFormatRGBA:
		return "RGBA"
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatARGB:
		return "ARGB"
	case PixelFormatRGBA64:
		return "RGBA64"
	case PixelFormatP010:
		return "P010"
	case PixelFormatDXVA2:
		return "DXVA2"
	case PixelFormatD3D11:
		return "D3D11"
	case PixelFormatVDPAU:
		return "VDPAU"
	case PixelFormatVAAPI:
		return "VAAPI"
	case PixelFormatOpenCL:
		return "OpenCL"
	default:
		return "None"
	}
}

// IsHardware reports whether the format is an opaque hardware surface.
func (f PixelFormat) IsHardware() bool {
	switch f {
	case PixelFormatDXVA2, PixelFormatD3D11, PixelFormatVDPAU, PixelFormatVAAPI, PixelFormatOpenCL:
		return true
	default:
		return false
	}
}

// SampleFormat enumerates raw audio sample layouts. The P variants are
// planar: one plane per channel instead of interleaved samples.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = -1 + iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatDBL
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
	SampleFormatDBLP
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "U8"
	case SampleFormatS16:
		return "S16"
	case SampleFormatS32:
		return "S32"
	case SampleFormatFLT:
		return "FLT"
	case SampleFormatDBL:
		return "DBL"
	case SampleFormatU8P:
		return "U8P"
	case SampleFormatS16P:
		return "S16P"
	case SampleFormatS32P:
		return "S32P"
	case SampleFormatFLTP:
		return "FLTP"
	case SampleFormatDBLP:
		return "DBLP"
	default:
		return "None"
	}
}

// IsPlanar reports whether the sample format keeps one plane per channel.
func (f SampleFormat) IsPlanar() bool {
	switch f {
	case SampleFormatU8P, SampleFormatS16P, SampleFormatS32P, SampleFormatFLTP, SampleFormatDBLP:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the storage size of a single sample, 0 for None.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFLT, SampleFormatFLTP:
		return 4
	case SampleFormatDBL, SampleFormatDBLP:
		return 8
	default:
		return 0
	}
}

// BytesPerFrame returns the interleaved size of one sample across channels.
func (f SampleFormat) BytesPerFrame(channels int) int {
	return f.BytesPerSample() * channels
}

// Packed returns the interleaved variant of the format (identity for
// formats that are already packed).
func (f SampleFormat) Packed() SampleFormat {
	switch f {
	case SampleFormatU8P:
		return SampleFormatU8
	case SampleFormatS16P:
		return SampleFormatS16
	case SampleFormatS32P:
		return SampleFormatS32
	case SampleFormatFLTP:
		return SampleFormatFLT
	case SampleFormatDBLP:
		return SampleFormatDBL
	default:
		return f
	}
}

// Planar returns the one-plane-per-channel variant of the format (identity
// for formats that are already planar).
func (f SampleFormat) Planar() SampleFormat {
	switch f {
	case SampleFormatU8:
		return SampleFormatU8P
	case SampleFormatS16:
		return SampleFormatS16P
	case SampleFormatS32:
		return SampleFormatS32P
	case SampleFormatFLT:
		return SampleFormatFLTP
	case SampleFormatDBL:
		return SampleFormatDBLP
	default:
		return f
	}
}
