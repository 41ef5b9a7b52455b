package movie

import (
	"fmt"
	"sort"
)

// Scripted in-memory decode backend for session tests. The video stream
// decodes to frames whose converted pixels are a function of the packet
// timestamp, and the audio stream resamples to a deterministic byte pattern
// over the virtual PCM stream, so tests can check contents by position.

const (
	fakeVideoStream = 0
	fakeAudioStream = 1

	fakeWidth  = 640
	fakeHeight = 480
	fakeFPS    = 25

	fakeAudioRate       = 44100
	fakeAudioSamplesPkt = 1024
)

// pcmByte is the expected decoded byte at offset o of the virtual PCM
// stream. The modulus is prime so misaligned copies never match.
func pcmByte(o int64) byte {
	return byte(o % 251)
}

// frameByte is the expected BGRA byte for a frame decoded at the given DTS.
func frameByte(dts int64) byte {
	return byte(dts%250 + 1)
}

type fakeMovieConfig struct {
	videoFrames      int   // Number of video packets, DTS = frame number
	keyframeInterval int   // Every Nth video packet is a keyframe (1 = all)
	audioSamples     int   // Total audio samples; 0 = no audio stream
	failVideoDecoder bool  // NewDecoder fails for the video stream
	failResampler    bool  // NewResampler fails
	driftDTS         int64 // Video frame at this DTS decodes at wrong size
}

type fakeDemuxer struct {
	cfg     fakeMovieConfig
	streams []StreamInfo
	packets []Packet
	pos     int

	seeks  int
	closed bool

	videoDec *fakeDecoder
	audioDec *fakeDecoder
	conv     *fakeConverter
	resamp   *fakeResampler
}

func newFakeMovie(cfg fakeMovieConfig) *fakeDemuxer {
	if cfg.videoFrames == 0 {
		cfg.videoFrames = 250
	}
	if cfg.keyframeInterval == 0 {
		cfg.keyframeInterval = 1
	}

	d := &fakeDemuxer{cfg: cfg}
	d.streams = []StreamInfo{{
		Index:       fakeVideoStream,
		Type:        MediaTypeVideo,
		CodecName:   "fakevideo",
		TimeBase:    Rational{Num: 1, Den: fakeFPS},
		Width:       fakeWidth,
		Height:      fakeHeight,
		PixelFormat: PixelFormatI420,
	}}

	for i := 0; i < cfg.videoFrames; i++ {
		d.packets = append(d.packets, Packet{
			StreamIndex: fakeVideoStream,
			DTS:         int64(i),
			Keyframe:    i%cfg.keyframeInterval == 0,
			Data:        []byte{0},
		})
	}

	if cfg.audioSamples > 0 {
		d.streams = append(d.streams, StreamInfo{
			Index:        fakeAudioStream,
			Type:         MediaTypeAudio,
			CodecName:    "fakeaudio",
			TimeBase:     Rational{Num: 1, Den: fakeAudioRate},
			SampleRate:   fakeAudioRate,
			Channels:     2,
			SampleFormat: AudioFormatF32,
		})
		for s := 0; s < cfg.audioSamples; s += fakeAudioSamplesPkt {
			n := cfg.audioSamples - s
			if n > fakeAudioSamplesPkt {
				n = fakeAudioSamplesPkt
			}
			// Data length carries the packet's sample count.
			d.packets = append(d.packets, Packet{
				StreamIndex: fakeAudioStream,
				DTS:         int64(s),
				Keyframe:    true,
				Data:        make([]byte, n),
			})
		}
	}

	// Interleave by presentation time like a real container.
	sort.SliceStable(d.packets, func(i, j int) bool {
		pi, pj := d.packets[i], d.packets[j]
		ti := float64(pi.DTS) * d.streams[pi.StreamIndex].TimeBase.Seconds()
		tj := float64(pj.DTS) * d.streams[pj.StreamIndex].TimeBase.Seconds()
		return ti < tj
	})

	return d
}

func (d *fakeDemuxer) open(path string) (Demuxer, error) {
	return d, nil
}

func (d *fakeDemuxer) Streams() []StreamInfo { return d.streams }

func (d *fakeDemuxer) Duration() float64 {
	return float64(d.cfg.videoFrames) / float64(fakeFPS)
}

func (d *fakeDemuxer) BestStream(t MediaType) (int, error) {
	for _, st := range d.streams {
		if st.Type == t {
			return st.Index, nil
		}
	}
	return 0, ErrStreamNotFound
}

func (d *fakeDemuxer) lastDTS(stream int) (int64, bool) {
	found := false
	var last int64
	for _, p := range d.packets {
		if p.StreamIndex != stream {
			continue
		}
		if !found || p.DTS > last {
			last = p.DTS
		}
		found = true
	}
	return last, found
}

func (d *fakeDemuxer) Seek(stream int, target int64, anyFrame bool) error {
	d.seeks++

	last, ok := d.lastDTS(stream)
	if !ok || target > last {
		return ErrEOF
	}

	best := -1
	for i, p := range d.packets {
		if p.StreamIndex != stream || p.DTS > target {
			continue
		}
		if anyFrame || p.Keyframe {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	d.pos = best
	return nil
}

func (d *fakeDemuxer) ReadPacket(pkt *Packet) error {
	if d.pos >= len(d.packets) {
		return ErrEOF
	}
	src := d.packets[d.pos]
	d.pos++

	pkt.StreamIndex = src.StreamIndex
	pkt.DTS = src.DTS
	pkt.Keyframe = src.Keyframe
	pkt.Data = append(pkt.Data[:0], src.Data...)
	return nil
}

func (d *fakeDemuxer) NewDecoder(stream int) (Decoder, error) {
	if stream == fakeVideoStream && d.cfg.failVideoDecoder {
		return nil, ErrUnsupportedCodec
	}
	dec := &fakeDecoder{d: d, stream: stream}
	if stream == fakeVideoStream {
		d.videoDec = dec
	} else {
		d.audioDec = dec
	}
	return dec, nil
}

func (d *fakeDemuxer) NewPixelConverter(stream int, dst PixelFormat) (PixelConverter, error) {
	if dst != PixelFormatBGRA32 {
		return nil, fmt.Errorf("unsupported destination format %s", dst)
	}
	d.conv = &fakeConverter{}
	return d.conv, nil
}

func (d *fakeDemuxer) NewResampler(stream int, format AudioFormat, rate, channels int) (Resampler, error) {
	if d.cfg.failResampler {
		return nil, fmt.Errorf("resampler init failed")
	}
	d.resamp = &fakeResampler{bytesPerSample: channels * format.BytesPerSample()}
	return d.resamp, nil
}

func (d *fakeDemuxer) Close() error {
	d.closed = true
	return nil
}

type fakeDecoder struct {
	d      *fakeDemuxer
	stream int

	flushes int
	decodes int
	closed  bool
}

func (dec *fakeDecoder) Decode(pkt *Packet, frame *RawFrame) error {
	dec.decodes++
	frame.Reset()
	frame.DTS = pkt.DTS

	if dec.stream == fakeVideoStream {
		frame.Width = fakeWidth
		frame.Height = fakeHeight
		frame.PixelFormat = PixelFormatI420
		if dec.d.cfg.driftDTS != 0 && pkt.DTS == dec.d.cfg.driftDTS {
			frame.Width /= 2
			frame.Height /= 2
		}
		frame.Data = append(frame.Data, []byte{frameByte(pkt.DTS)})
		frame.Stride = append(frame.Stride, 1)
		return nil
	}

	frame.SampleFormat = AudioFormatF32
	frame.SampleCount = len(pkt.Data)
	frame.Channels = 2
	return nil
}

func (dec *fakeDecoder) Flush()       { dec.flushes++ }
func (dec *fakeDecoder) Close() error { dec.closed = true; return nil }

type fakeConverter struct {
	converts int
	closed   bool
}

func (c *fakeConverter) Convert(frame *RawFrame, dst []byte) error {
	c.converts++
	b := frameByte(frame.DTS)
	for i := range dst {
		dst[i] = b
	}
	return nil
}

func (c *fakeConverter) Close() error { c.closed = true; return nil }

type fakeResampler struct {
	bytesPerSample int
	closed         bool
}

func (r *fakeResampler) Resample(frame *RawFrame, dst []byte) (int, error) {
	n := frame.SampleCount * r.bytesPerSample
	if n > len(dst) {
		n = len(dst)
	}
	start := frame.DTS * int64(r.bytesPerSample)
	for i := 0; i < n; i++ {
		dst[i] = pcmByte(start + int64(i))
	}
	return n, nil
}

func (r *fakeResampler) Close() error { r.closed = true; return nil }
