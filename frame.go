package movie

// MediaType identifies the payload kind of a container stream.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24               // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32              // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32              // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB24, PixelFormatRGBA32, PixelFormatBGRA32:
		return 1 // Packed
	default:
		return 0
	}
}

// BytesPerPixel returns the packed pixel size, or 0 for planar formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatUnknown AudioFormat = iota
	AudioFormatS16                 // Signed 16-bit PCM, interleaved
	AudioFormatF32                 // 32-bit float PCM, interleaved
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// BGRASize returns the buffer size needed for a tightly packed BGRA frame.
func BGRASize(width, height int) int {
	return width * height * 4
}

// VideoInfo describes the video stream of an open session.
type VideoInfo struct {
	Width    int     // Frame width in pixels
	Height   int     // Frame height in pixels
	Duration float64 // Container duration in seconds
}

// AudioInfo describes the decoded PCM output of an open session.
// The format is fixed at open time and independent of the source stream.
type AudioInfo struct {
	SampleRate     int   // Output sample rate (e.g., 44100)
	Channels       int   // Output channel count (1 = mono, 2 = stereo)
	BytesPerSample int   // Bytes per sample per channel
	BytesPerSecond int   // One second of output PCM in bytes
	TotalBytes     int64 // Expected PCM length from the container duration
}
