//go:build (darwin || linux) && !noffmpeg

// FFmpeg-backed demuxer via libmovie_ffmpeg using purego.
//
// libmovie_ffmpeg is a thin C wrapper around libavformat/libavcodec/
// libswscale/libswresample with a flat primitive-only API, loaded
// dynamically at runtime so the package builds with CGO_ENABLED=0.
//
// Library locations checked (in order):
//   - MOVIE_FFMPEG_LIB_PATH environment variable
//   - MOVIE_SDK_LIB_PATH environment variable
//   - Executable-relative and build/ directories
//   - System library paths

package movie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ErrBackendUnavailable is returned by OpenFFmpeg when libmovie_ffmpeg
// cannot be loaded on this platform.
var ErrBackendUnavailable = errors.New("ffmpeg backend unavailable")

var (
	movieFFOnce    sync.Once
	movieFFHandle  uintptr
	movieFFInitErr error
)

// libmovie_ffmpeg function pointers
var (
	movieFFOpen        func(path string) uint64
	movieFFClose       func(h uint64)
	movieFFStreamCount func(h uint64) int32
	movieFFStreamInfo  func(h uint64, idx int32, out uintptr) int32
	movieFFDuration    func(h uint64) float64
	movieFFBestStream  func(h uint64, mediaType int32) int32
	movieFFSeek        func(h uint64, stream int32, ts int64, anyFrame int32) int32
	movieFFReadPacket  func(h uint64, out uintptr) int32

	movieFFDecoderOpen   func(h uint64, stream int32) uint64
	movieFFDecoderDecode func(dec uint64, data uintptr, size int32, dts int64, out uintptr) int32
	movieFFDecoderFlush  func(dec uint64)
	movieFFDecoderClose  func(dec uint64)

	movieFFScalerOpen    func(h uint64, stream int32, dstFormat int32) uint64
	movieFFScalerConvert func(sc uint64, frame uintptr, dst uintptr, dstSize int32) int32
	movieFFScalerClose   func(sc uint64)

	movieFFResamplerOpen    func(h uint64, stream int32, dstFormat, rate, channels int32) uint64
	movieFFResamplerConvert func(rs uint64, frame uintptr, dst uintptr, dstCap int32) int32
	movieFFResamplerClose   func(rs uint64)

	movieFFLastError func() uintptr
)

// Return codes from movie_ffmpeg.h
const (
	movieFFOK    = 0
	movieFFError = -1
	movieFFEOF   = -2
	movieFFAgain = -3
)

// movieFFStreamInfoC matches movie_stream_info_t in C.
type movieFFStreamInfoC struct {
	MediaType    int32
	CodecOK      int32
	Width        int32
	Height       int32
	PixelFormat  int32
	SampleRate   int32
	Channels     int32
	SampleFormat int32
	TimeBaseNum  int32
	TimeBaseDen  int32
	CodecName    [32]byte
}

// movieFFPacketC matches movie_packet_t in C. Data points at wrapper-owned
// memory reused on the next read.
// This struct must be heap-allocated for purego to work correctly on arm64.
type movieFFPacketC struct {
	Data        uint64
	DTS         int64
	Size        int32
	StreamIndex int32
	Keyframe    int32
	Reserved    int32
}

// movieFFFrameC matches movie_frame_t in C.
type movieFFFrameC struct {
	Planes      [4]uint64
	PlaneSizes  [4]int32
	Strides     [4]int32
	DTS         int64
	Width       int32
	Height      int32
	Format      int32 // PixelFormat or AudioFormat depending on stream type
	SampleCount int32
	Channels    int32
	Reserved    int32
}

func loadMovieFFmpeg() error {
	movieFFOnce.Do(func() {
		movieFFInitErr = loadMovieFFmpegLib()
	})
	return movieFFInitErr
}

func loadMovieFFmpegLib() error {
	var lastErr error
	for _, path := range movieFFmpegLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			movieFFHandle = handle
			loadMovieFFmpegSymbols()
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
	}
	return ErrBackendUnavailable
}

func movieFFmpegLibPaths() []string {
	var paths []string

	libName := "libmovie_ffmpeg.so"
	if runtime.GOOS == "darwin" {
		libName = "libmovie_ffmpeg.dylib"
	}

	// Environment variable overrides
	if envPath := os.Getenv("MOVIE_FFMPEG_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("MOVIE_SDK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	// Try to find based on executable location
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	// Try to find based on working directory
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, "build", libName),
			filepath.Join(wd, "build", "ffi", libName),
		)
	}

	// Module root (works in IDE/tests)
	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", libName),
			filepath.Join(root, "build", "ffi", libName),
		)
	}

	// System paths
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/opt/homebrew/lib/"+libName,
		)
	case "linux":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/usr/lib/"+libName,
		)
	}

	return paths
}

func loadMovieFFmpegSymbols() {
	purego.RegisterLibFunc(&movieFFOpen, movieFFHandle, "movie_ffmpeg_open")
	purego.RegisterLibFunc(&movieFFClose, movieFFHandle, "movie_ffmpeg_close")
	purego.RegisterLibFunc(&movieFFStreamCount, movieFFHandle, "movie_ffmpeg_stream_count")
	purego.RegisterLibFunc(&movieFFStreamInfo, movieFFHandle, "movie_ffmpeg_stream_info")
	purego.RegisterLibFunc(&movieFFDuration, movieFFHandle, "movie_ffmpeg_duration")
	purego.RegisterLibFunc(&movieFFBestStream, movieFFHandle, "movie_ffmpeg_best_stream")
	purego.RegisterLibFunc(&movieFFSeek, movieFFHandle, "movie_ffmpeg_seek")
	purego.RegisterLibFunc(&movieFFReadPacket, movieFFHandle, "movie_ffmpeg_read_packet")

	purego.RegisterLibFunc(&movieFFDecoderOpen, movieFFHandle, "movie_ffmpeg_decoder_open")
	purego.RegisterLibFunc(&movieFFDecoderDecode, movieFFHandle, "movie_ffmpeg_decoder_decode")
	purego.RegisterLibFunc(&movieFFDecoderFlush, movieFFHandle, "movie_ffmpeg_decoder_flush")
	purego.RegisterLibFunc(&movieFFDecoderClose, movieFFHandle, "movie_ffmpeg_decoder_close")

	purego.RegisterLibFunc(&movieFFScalerOpen, movieFFHandle, "movie_ffmpeg_scaler_open")
	purego.RegisterLibFunc(&movieFFScalerConvert, movieFFHandle, "movie_ffmpeg_scaler_convert")
	purego.RegisterLibFunc(&movieFFScalerClose, movieFFHandle, "movie_ffmpeg_scaler_close")

	purego.RegisterLibFunc(&movieFFResamplerOpen, movieFFHandle, "movie_ffmpeg_resampler_open")
	purego.RegisterLibFunc(&movieFFResamplerConvert, movieFFHandle, "movie_ffmpeg_resampler_convert")
	purego.RegisterLibFunc(&movieFFResamplerClose, movieFFHandle, "movie_ffmpeg_resampler_close")

	purego.RegisterLibFunc(&movieFFLastError, movieFFHandle, "movie_ffmpeg_last_error")
}

func movieFFErr(op string) error {
	msg := goStringFromPtr(movieFFLastError())
	if msg == "" {
		return fmt.Errorf("%s failed", op)
	}
	return fmt.Errorf("%s: %s", op, msg)
}

func mapMovieFFCode(code int32, op string) error {
	switch {
	case code >= movieFFOK:
		return nil
	case code == movieFFEOF:
		return ErrEOF
	case code == movieFFAgain:
		return ErrAgain
	default:
		return movieFFErr(op)
	}
}

// IsFFmpegAvailable reports whether libmovie_ffmpeg can be loaded.
func IsFFmpegAvailable() bool {
	return loadMovieFFmpeg() == nil
}

// OpenFFmpeg opens a media container through the FFmpeg wrapper. It is the
// default DemuxOpener.
func OpenFFmpeg(path string) (Demuxer, error) {
	if err := loadMovieFFmpeg(); err != nil {
		return nil, err
	}

	h := movieFFOpen(path)
	if h == 0 {
		return nil, movieFFErr("movie_ffmpeg_open")
	}

	d := &ffmpegDemuxer{
		handle: h,
		pktC:   new(movieFFPacketC),
	}

	count := int(movieFFStreamCount(h))
	d.streams = make([]StreamInfo, 0, count)
	infoC := new(movieFFStreamInfoC)
	for i := 0; i < count; i++ {
		if movieFFStreamInfo(h, int32(i), uintptr(unsafe.Pointer(infoC))) != movieFFOK {
			movieFFClose(h)
			return nil, movieFFErr("movie_ffmpeg_stream_info")
		}
		d.streams = append(d.streams, streamInfoFromC(i, infoC))
	}

	return d, nil
}

func streamInfoFromC(idx int, c *movieFFStreamInfoC) StreamInfo {
	name := c.CodecName[:]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return StreamInfo{
		Index:        idx,
		Type:         MediaType(c.MediaType),
		CodecName:    string(name[:n]),
		TimeBase:     Rational{Num: int(c.TimeBaseNum), Den: int(c.TimeBaseDen)},
		Width:        int(c.Width),
		Height:       int(c.Height),
		PixelFormat:  PixelFormat(c.PixelFormat),
		SampleRate:   int(c.SampleRate),
		Channels:     int(c.Channels),
		SampleFormat: AudioFormat(c.SampleFormat),
	}
}

type ffmpegDemuxer struct {
	handle  uint64
	streams []StreamInfo
	pktC    *movieFFPacketC
	closed  bool
}

func (d *ffmpegDemuxer) Streams() []StreamInfo { return d.streams }

func (d *ffmpegDemuxer) Duration() float64 { return movieFFDuration(d.handle) }

func (d *ffmpegDemuxer) BestStream(t MediaType) (int, error) {
	idx := movieFFBestStream(d.handle, int32(t))
	if idx < 0 {
		return 0, fmt.Errorf("%w: no %s stream", ErrStreamNotFound, t)
	}
	return int(idx), nil
}

func (d *ffmpegDemuxer) Seek(stream int, target int64, anyFrame bool) error {
	var any int32
	if anyFrame {
		any = 1
	}
	return mapMovieFFCode(movieFFSeek(d.handle, int32(stream), target, any), "movie_ffmpeg_seek")
}

func (d *ffmpegDemuxer) ReadPacket(pkt *Packet) error {
	code := movieFFReadPacket(d.handle, uintptr(unsafe.Pointer(d.pktC)))
	if err := mapMovieFFCode(code, "movie_ffmpeg_read_packet"); err != nil {
		return err
	}

	pkt.StreamIndex = int(d.pktC.StreamIndex)
	pkt.DTS = d.pktC.DTS
	pkt.Keyframe = d.pktC.Keyframe != 0

	// The wrapper reuses its packet buffer on every read; copy out so Go
	// packets stay valid while further reads happen.
	pkt.Data = pkt.Data[:0]
	if d.pktC.Data != 0 && d.pktC.Size > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(d.pktC.Data))), int(d.pktC.Size))
		pkt.Data = append(pkt.Data, src...)
	}
	return nil
}

func (d *ffmpegDemuxer) NewDecoder(stream int) (Decoder, error) {
	if stream < 0 || stream >= len(d.streams) {
		return nil, fmt.Errorf("%w: stream %d", ErrStreamNotFound, stream)
	}
	h := movieFFDecoderOpen(d.handle, int32(stream))
	if h == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, d.streams[stream].CodecName)
	}
	return &ffmpegDecoder{
		handle: h,
		media:  d.streams[stream].Type,
		frameC: new(movieFFFrameC),
	}, nil
}

func (d *ffmpegDemuxer) NewPixelConverter(stream int, dst PixelFormat) (PixelConverter, error) {
	h := movieFFScalerOpen(d.handle, int32(stream), int32(dst))
	if h == 0 {
		return nil, movieFFErr("movie_ffmpeg_scaler_open")
	}
	return &ffmpegScaler{handle: h, frameC: new(movieFFFrameC)}, nil
}

func (d *ffmpegDemuxer) NewResampler(stream int, format AudioFormat, rate, channels int) (Resampler, error) {
	h := movieFFResamplerOpen(d.handle, int32(stream), int32(format), int32(rate), int32(channels))
	if h == 0 {
		return nil, movieFFErr("movie_ffmpeg_resampler_open")
	}
	return &ffmpegResampler{handle: h, frameC: new(movieFFFrameC)}, nil
}

func (d *ffmpegDemuxer) Close() error {
	if !d.closed {
		d.closed = true
		movieFFClose(d.handle)
	}
	return nil
}

type ffmpegDecoder struct {
	handle uint64
	media  MediaType
	frameC *movieFFFrameC
	closed bool
}

func (dec *ffmpegDecoder) Decode(pkt *Packet, frame *RawFrame) error {
	var data uintptr
	if len(pkt.Data) > 0 {
		data = uintptr(unsafe.Pointer(unsafe.SliceData(pkt.Data)))
	}
	code := movieFFDecoderDecode(dec.handle, data, int32(len(pkt.Data)), pkt.DTS,
		uintptr(unsafe.Pointer(dec.frameC)))
	runtime.KeepAlive(pkt.Data)
	if err := mapMovieFFCode(code, "movie_ffmpeg_decoder_decode"); err != nil {
		return err
	}

	rawFrameFromC(dec.frameC, dec.media, frame)
	return nil
}

func (dec *ffmpegDecoder) Flush() { movieFFDecoderFlush(dec.handle) }

func (dec *ffmpegDecoder) Close() error {
	if !dec.closed {
		dec.closed = true
		movieFFDecoderClose(dec.handle)
	}
	return nil
}

// rawFrameFromC maps a wrapper frame into frame. The plane slices reference
// decoder-owned memory, valid until the next decode.
func rawFrameFromC(c *movieFFFrameC, media MediaType, frame *RawFrame) {
	frame.Reset()
	frame.DTS = c.DTS
	for i := 0; i < 4; i++ {
		if c.Planes[i] == 0 || c.PlaneSizes[i] <= 0 {
			break
		}
		plane := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(c.Planes[i]))), int(c.PlaneSizes[i]))
		frame.Data = append(frame.Data, plane)
		frame.Stride = append(frame.Stride, int(c.Strides[i]))
	}
	switch media {
	case MediaTypeVideo:
		frame.Width = int(c.Width)
		frame.Height = int(c.Height)
		frame.PixelFormat = PixelFormat(c.Format)
	case MediaTypeAudio:
		frame.SampleFormat = AudioFormat(c.Format)
		frame.SampleCount = int(c.SampleCount)
		frame.Channels = int(c.Channels)
	}
}

// fillFrameC rebuilds a wrapper frame from frame for the convert calls.
func fillFrameC(frame *RawFrame, c *movieFFFrameC) {
	*c = movieFFFrameC{
		DTS:         frame.DTS,
		Width:       int32(frame.Width),
		Height:      int32(frame.Height),
		SampleCount: int32(frame.SampleCount),
		Channels:    int32(frame.Channels),
	}
	if frame.PixelFormat != PixelFormatUnknown {
		c.Format = int32(frame.PixelFormat)
	} else {
		c.Format = int32(frame.SampleFormat)
	}
	for i, plane := range frame.Data {
		if i >= 4 {
			break
		}
		if len(plane) > 0 {
			c.Planes[i] = uint64(uintptr(unsafe.Pointer(unsafe.SliceData(plane))))
			c.PlaneSizes[i] = int32(len(plane))
		}
		if i < len(frame.Stride) {
			c.Strides[i] = int32(frame.Stride[i])
		}
	}
}

type ffmpegScaler struct {
	handle uint64
	frameC *movieFFFrameC
	closed bool
}

func (sc *ffmpegScaler) Convert(frame *RawFrame, dst []byte) error {
	if len(dst) == 0 {
		return fmt.Errorf("empty destination buffer")
	}
	fillFrameC(frame, sc.frameC)
	code := movieFFScalerConvert(sc.handle, uintptr(unsafe.Pointer(sc.frameC)),
		uintptr(unsafe.Pointer(unsafe.SliceData(dst))), int32(len(dst)))
	runtime.KeepAlive(frame.Data)
	runtime.KeepAlive(dst)
	return mapMovieFFCode(code, "movie_ffmpeg_scaler_convert")
}

func (sc *ffmpegScaler) Close() error {
	if !sc.closed {
		sc.closed = true
		movieFFScalerClose(sc.handle)
	}
	return nil
}

type ffmpegResampler struct {
	handle uint64
	frameC *movieFFFrameC
	closed bool
}

func (rs *ffmpegResampler) Resample(frame *RawFrame, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	fillFrameC(frame, rs.frameC)
	code := movieFFResamplerConvert(rs.handle, uintptr(unsafe.Pointer(rs.frameC)),
		uintptr(unsafe.Pointer(unsafe.SliceData(dst))), int32(len(dst)))
	runtime.KeepAlive(frame.Data)
	runtime.KeepAlive(dst)
	if err := mapMovieFFCode(code, "movie_ffmpeg_resampler_convert"); err != nil {
		return 0, err
	}
	return int(code), nil
}

func (rs *ffmpegResampler) Close() error {
	if !rs.closed {
		rs.closed = true
		movieFFResamplerClose(rs.handle)
	}
	return nil
}
