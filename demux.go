package movie

import (
	"errors"
	"io"
)

// Sentinel results from the decode library. These drive control flow and are
// not user-visible errors: ErrAgain means the decoder needs more input before
// it can emit a frame, ErrEOF means the stream or decoder is drained.
var (
	ErrAgain = errors.New("decoder needs more input")
	ErrEOF   = errors.New("end of stream")

	// ErrStreamNotFound is returned by BestStream when the container has no
	// stream of the requested type.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrUnsupportedCodec is returned by NewDecoder when no decoder exists
	// for the stream's codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Rational is an exact ratio, used for stream time bases.
// A stream timestamp multiplied by its time base yields seconds.
type Rational struct {
	Num int
	Den int
}

// Seconds returns the ratio as a float.
func (r Rational) Seconds() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// StreamInfo describes one stream of an open container.
type StreamInfo struct {
	Index     int
	Type      MediaType
	CodecName string
	TimeBase  Rational // Native time unit as a fraction of a second

	// Video streams
	Width       int
	Height      int
	PixelFormat PixelFormat

	// Audio streams
	SampleRate   int
	Channels     int
	SampleFormat AudioFormat
}

// Packet is one compressed unit of data for a single stream, carrying a
// decode timestamp in the stream's native time-base units.
// Data may reference memory owned by the demuxer; it is valid until the next
// ReadPacket call that fills the same Packet.
type Packet struct {
	StreamIndex int
	DTS         int64
	Keyframe    bool
	Data        []byte
}

// Reset drops the packet's payload so the holder can be reused.
func (p *Packet) Reset() {
	p.StreamIndex = 0
	p.DTS = 0
	p.Keyframe = false
	p.Data = p.Data[:0]
}

// MoveTo transfers this packet's contents into dst and resets the receiver,
// swapping the payload buffers so neither side allocates.
func (p *Packet) MoveTo(dst *Packet) {
	dst.Data, p.Data = p.Data, dst.Data
	dst.StreamIndex = p.StreamIndex
	dst.DTS = p.DTS
	dst.Keyframe = p.Keyframe
	p.Reset()
}

// RawFrame holds one decoded video frame or audio frame.
// Plane data may point to memory owned by the decoder (e.g., C memory via
// FFI) and is valid until the next Decode call on the same decoder.
type RawFrame struct {
	// Video
	Width       int
	Height      int
	PixelFormat PixelFormat
	Data        [][]byte // Plane data (1-4 planes depending on format)
	Stride      []int    // Stride for each plane in bytes

	// Audio
	SampleFormat AudioFormat
	SampleCount  int // Samples per channel
	Channels     int

	DTS int64
}

// Reset drops references to decoder-owned memory.
func (f *RawFrame) Reset() {
	f.Data = f.Data[:0]
	f.Stride = f.Stride[:0]
	f.Width = 0
	f.Height = 0
	f.PixelFormat = PixelFormatUnknown
	f.SampleFormat = AudioFormatUnknown
	f.SampleCount = 0
	f.Channels = 0
	f.DTS = 0
}

// Demuxer is the container half of the external media library: it owns an
// open container and vends the decode, pixel-conversion and resampling
// handles for its streams so one backend owns every native resource.
//
// Calls are blocking and must be serialized by the caller; the playback
// session drives its demuxer from a single goroutine.
type Demuxer interface {
	io.Closer

	// Streams enumerates the container's streams. The returned slice is
	// stable for the lifetime of the demuxer.
	Streams() []StreamInfo

	// BestStream returns the index of the best stream of the given type,
	// or ErrStreamNotFound.
	BestStream(t MediaType) (int, error)

	// Seek positions the given stream at or before target (native time-base
	// units). With anyFrame set the demuxer may land on any frame; otherwise
	// it lands on a keyframe boundary. Returns ErrEOF when the target lies
	// beyond the stream.
	Seek(stream int, target int64, anyFrame bool) error

	// ReadPacket reads the next packet of any stream into pkt.
	// Returns ErrEOF at end of container.
	ReadPacket(pkt *Packet) error

	// Duration returns the container duration in seconds.
	Duration() float64

	// NewDecoder opens a decoder for the given stream.
	NewDecoder(stream int) (Decoder, error)

	// NewPixelConverter opens a converter from the stream's pixel format and
	// size to dst at the same size.
	NewPixelConverter(stream int, dst PixelFormat) (PixelConverter, error)

	// NewResampler opens a resampler from the stream's audio format to the
	// given output format, rate and channel count.
	NewResampler(stream int, format AudioFormat, rate, channels int) (Resampler, error)
}

// Decoder decodes packets of a single stream into raw frames.
type Decoder interface {
	io.Closer

	// Decode submits pkt and receives the next frame into frame.
	// Returns ErrAgain when more input is needed before a frame is
	// available, ErrEOF when the decoder is drained.
	Decode(pkt *Packet, frame *RawFrame) error

	// Flush discards the decoder's buffered pictures so decoding can restart
	// from a keyframe.
	Flush()
}

// PixelConverter converts decoded video frames into a fixed destination
// format. The destination buffer is caller-owned and tightly packed.
type PixelConverter interface {
	io.Closer

	Convert(frame *RawFrame, dst []byte) error
}

// Resampler converts decoded audio frames into the fixed output format
// configured at construction. It returns the number of bytes written to dst.
type Resampler interface {
	io.Closer

	Resample(frame *RawFrame, dst []byte) (int, error)
}

// DemuxOpener opens a media container at a filesystem path.
// OpenFFmpeg is the production opener; tests substitute scripted fakes.
type DemuxOpener func(path string) (Demuxer, error)
