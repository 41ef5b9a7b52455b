package movie

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-hclog"
)

// Fixed decoded-audio output. Downstream mixers always see this format, no
// matter what the source stream carries.
const (
	audioOutRate     = 44100
	audioOutChannels = 2
)

const audioOutFormat = AudioFormatS16

// Nominal starting capacity of the decoded-audio cache. The cache grows only
// when a single decoded frame does not fit.
const defaultAudioCacheSize = 64 * 1024

// tsUnset marks the keyframe and last-decoded timestamps before the first
// seek, so the first found packet always reads as a new keyframe.
const tsUnset = math.MinInt64

// SessionConfig configures a playback session.
type SessionConfig struct {
	// Open opens the media container. Defaults to OpenFFmpeg.
	Open DemuxOpener

	// Logger receives diagnostics. Defaults to hclog.Default().
	Logger hclog.Logger
}

// Session is one movie playback session: it owns the demux and decode
// handles for a single container and serves decoded BGRA frames and PCM
// byte windows to a renderer and an audio mixer.
//
// A session is driven by one goroutine at a time; concurrent calls into the
// same session must be serialized by the caller. Buffers returned from
// retrieval calls are borrowed and valid only until the next call on the
// same session, or until Close.
type Session struct {
	active bool
	logger hclog.Logger
	open   DemuxOpener

	demux    Demuxer
	videoDec Decoder
	audioDec Decoder
	conv     PixelConverter
	resamp   Resampler

	// Reusable scratch holders, shared by the video and audio paths.
	pkt     *Packet
	pktSeek *Packet
	frame   *RawFrame

	// Video stream state.
	videoStream int
	width       int
	height      int
	pixFmt      PixelFormat
	duration    float64
	dst         []byte // Fixed BGRA destination, reused across calls

	keyframeDTS int64 // Closest keyframe after seeking
	currentDTS  int64 // Last decoded frame

	// Audio stream state.
	audioStream int
	channels    int
	rate        int
	sampleFmt   AudioFormat

	cache        []byte // Decoded PCM, one contiguous forward run
	cacheLen     int    // Valid bytes in cache
	cacheOff     int64  // Virtual stream position of cache[0]
	haveCache    bool
	audioPending bool   // pktSeek holds the next packet to decode
	audioEOFPos  int64  // Byte position of end of audio, MaxInt64 until observed
}

// NewSession returns an inactive session. Open activates it.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		open:   cfg.Open,
		logger: cfg.Logger,
	}
	if s.open == nil {
		s.open = OpenFFmpeg
	}
	if s.logger == nil {
		s.logger = hclog.Default()
	}
	s.audioStream = -1
	return s
}

// IsActive reports whether the session opened successfully and has not been
// closed. All accessors on an inactive session are no-ops.
func (s *Session) IsActive() bool {
	return s != nil && s.active
}

// Open opens the media container at path and prepares the video pipeline,
// plus the audio pipeline when wantAudio is set. Any failure leaves the
// session fully closed. With quiet set, open diagnostics are suppressed.
func (s *Session) Open(path string, wantAudio, quiet bool) error {
	s.Close()

	log := s.logger
	if quiet {
		log = hclog.NewNullLogger()
	}

	fail := func(msg string, err error) error {
		log.Error(msg, "path", path, "error", err)
		s.Close()
		return fmt.Errorf("%s: %w", msg, err)
	}

	demux, err := s.open(path)
	if err != nil {
		log.Error("failed to open container", "path", path, "error", err)
		return err
	}
	s.demux = demux

	vs, err := demux.BestStream(MediaTypeVideo)
	if err != nil {
		return fail("no usable video stream", err)
	}
	s.videoStream = vs

	if s.videoDec, err = demux.NewDecoder(vs); err != nil {
		return fail("failed to open video decoder", err)
	}

	s.pkt = &Packet{}
	s.pktSeek = &Packet{}
	s.frame = &RawFrame{}

	info := demux.Streams()[vs]
	s.width = info.Width
	s.height = info.Height
	s.pixFmt = info.PixelFormat
	s.duration = demux.Duration()
	s.keyframeDTS = tsUnset
	s.currentDTS = tsUnset

	if s.conv, err = demux.NewPixelConverter(vs, PixelFormatBGRA32); err != nil {
		return fail("failed to open pixel converter", err)
	}
	s.dst = make([]byte, BGRASize(s.width, s.height))

	s.audioStream = -1
	if wantAudio {
		as, err := demux.BestStream(MediaTypeAudio)
		if err != nil {
			// Audio was requested but the container has none; the session
			// still plays video.
			log.Warn("no audio stream in container", "path", path)
			s.active = true
			return nil
		}

		if s.audioDec, err = demux.NewDecoder(as); err != nil {
			return fail("failed to open audio decoder", err)
		}
		if s.resamp, err = demux.NewResampler(as, audioOutFormat, audioOutRate, audioOutChannels); err != nil {
			return fail("failed to open resampler", err)
		}

		s.audioStream = as
		s.channels = audioOutChannels
		s.rate = audioOutRate
		s.sampleFmt = audioOutFormat
		s.cache = make([]byte, defaultAudioCacheSize)
		s.audioEOFPos = math.MaxInt64
	}

	s.active = true
	return nil
}

// Close releases every handle and buffer the session owns and zeroes its
// state. It is idempotent and safe on partially initialized sessions.
func (s *Session) Close() {
	if s.resamp != nil {
		s.resamp.Close()
	}
	if s.conv != nil {
		s.conv.Close()
	}
	if s.audioDec != nil {
		s.audioDec.Close()
	}
	if s.videoDec != nil {
		s.videoDec.Close()
	}
	if s.demux != nil {
		s.demux.Close()
	}
	*s = Session{
		open:        s.open,
		logger:      s.logger,
		audioStream: -1,
	}
}

// VideoInfo returns the video stream parameters.
func (s *Session) VideoInfo() (VideoInfo, bool) {
	if !s.IsActive() {
		return VideoInfo{}, false
	}
	return VideoInfo{Width: s.width, Height: s.height, Duration: s.duration}, true
}

// AudioInfo returns the fixed decoded-audio output parameters.
func (s *Session) AudioInfo() (AudioInfo, bool) {
	if !s.IsActive() || s.audioStream < 0 {
		return AudioInfo{}, false
	}
	bps := s.sampleFmt.BytesPerSample()
	perSecond := s.rate * s.channels * bps
	return AudioInfo{
		SampleRate:     s.rate,
		Channels:       s.channels,
		BytesPerSample: bps,
		BytesPerSecond: perSecond,
		// An estimate: the true length is only known once the end of the
		// soundtrack has been decoded.
		TotalBytes: int64(s.duration * float64(perSecond)),
	}, true
}

// TimestampForTime converts seconds into the given stream's native
// time-base units, rounded to the nearest unit.
func (s *Session) TimestampForTime(stream int, seconds float64) int64 {
	if !s.IsActive() {
		return 0
	}
	streams := s.demux.Streams()
	if stream < 0 || stream >= len(streams) {
		return 0
	}
	return timestampForSeconds(seconds, streams[stream].TimeBase)
}

// VideoFrameNumber returns the video stream timestamp for a playback time.
func (s *Session) VideoFrameNumber(seconds float64) int {
	return int(s.TimestampForTime(s.videoStream, seconds))
}

// SoundPosition returns the audio stream timestamp for a playback time in
// milliseconds.
func (s *Session) SoundPosition(ms int) int {
	if s.audioStream < 0 {
		return 0
	}
	return int(s.TimestampForTime(s.audioStream, float64(ms)/1000.0))
}

// seekVideo positions the video stream at the keyframe at or before target
// and loads the found packet into s.pkt. It reports whether decoding must
// restart from that keyframe: false means the cursor landed back on the
// keyframe of the current run and decoding simply continues.
func (s *Session) seekVideo(target int64) (restart bool, err error) {
	if err := s.demux.Seek(s.videoStream, target, false); err != nil {
		if errors.Is(err, ErrEOF) {
			return false, ErrEOF
		}
		// A failed backward seek is survivable: the scan below may still
		// find a packet from the current position.
		s.logger.Error("video seek failed", "target", target, "error", err)
	}

	for {
		if err := s.demux.ReadPacket(s.pktSeek); err != nil {
			return false, ErrEOF
		}
		if s.pktSeek.StreamIndex != s.videoStream {
			s.pktSeek.Reset()
			continue
		}

		if s.keyframeDTS != s.pktSeek.DTS {
			s.keyframeDTS = s.pktSeek.DTS
			restart = true
		}
		s.pktSeek.MoveTo(s.pkt)
		return restart, nil
	}
}

// VideoFrame returns the decoded frame for the given target timestamp in
// video stream time-base units, as a tightly packed BGRA buffer of
// width*height pixels.
//
// It never returns nil for an active session: when no new frame can be
// produced (end of stream, decoder lag, format drift) the previous buffer
// contents are returned unchanged. The buffer is owned by the session and
// valid until the next call or Close.
func (s *Session) VideoFrame(target int64) []byte {
	if !s.IsActive() {
		return nil
	}

	restart, err := s.seekVideo(target)

	valid := false
	switch {
	case err != nil:
		// No packet found; hold the last frame.
	case restart:
		// New keyframe: discard buffered pictures and decode from here.
		s.videoDec.Flush()
		valid = true
	default:
		// Same keyframe run. Skip packets already decoded.
		if s.pkt.DTS >= target {
			valid = true
			break
		}
		for {
			if err := s.demux.ReadPacket(s.pkt); err != nil {
				break
			}
			if s.pkt.StreamIndex != s.videoStream {
				s.pkt.Reset()
				continue
			}
			if s.pkt.DTS <= s.currentDTS {
				s.pkt.Reset()
				continue
			}
			valid = true
			break
		}
	}

	if !valid {
		return s.dst
	}

	s.currentDTS = s.pkt.DTS

	if s.decode(s.videoDec, s.pkt, s.frame) != nil {
		s.pkt.Reset()
		return s.dst
	}
	s.pkt.Reset()

	if s.frame.Width != s.width || s.frame.Height != s.height || s.frame.PixelFormat != s.pixFmt {
		s.logger.Error("video frame dimensions changed mid-stream",
			"want", fmt.Sprintf("%dx%d %s", s.width, s.height, s.pixFmt),
			"got", fmt.Sprintf("%dx%d %s", s.frame.Width, s.frame.Height, s.frame.PixelFormat))
	} else if err := s.conv.Convert(s.frame, s.dst); err != nil {
		s.logger.Error("pixel conversion failed", "error", err)
	}

	s.frame.Reset()
	return s.dst
}

// decode runs one packet through dec. ErrAgain and ErrEOF are expected
// control-flow results and pass through silently; anything else is logged.
func (s *Session) decode(dec Decoder, pkt *Packet, frame *RawFrame) error {
	err := dec.Decode(pkt, frame)
	if err != nil && !errors.Is(err, ErrAgain) && !errors.Is(err, ErrEOF) {
		s.logger.Error("decode failed", "stream", pkt.StreamIndex, "error", err)
	}
	return err
}
