// Package movie manages movie playback sessions on top of an external
// demux/decode/rescale/resample library, exposing frame- and byte-range-
// addressable access to decoded video and PCM audio for a real-time
// renderer and audio mixer.
//
// Key pieces include:
//   - Session: one playback session owning demux/decode handles, a reusable
//     BGRA frame buffer, and a decoded-audio cache
//   - Registry: fixed two-slot table of sessions with a global enable switch
//   - Demuxer/Decoder/PixelConverter/Resampler: the decode-library boundary
//   - L16Packetizer: RTP framing for the session's PCM output
//
// # Addressing Model
//
// Three addressing domains meet here: wall-clock seconds, per-stream
// timestamps in native time-base units, and byte offsets into the virtual
// decoded PCM stream. TimestampForTime and the audio offset conversions in
// this package translate between them.
//
//	Video: Session.VideoFrame(timestamp) -> BGRA frame (hold-last on failure)
//	Audio: Session.AudioChunk(dst, offset, length) -> bytes unmet
//
// # Native Libraries
//
// The default backend loads libmovie_ffmpeg, a thin wrapper over FFmpeg,
// via purego (CGO_ENABLED=0). Set MOVIE_SDK_LIB_PATH to the directory
// containing the wrapper library. The noffmpeg build tag disables it.
//
// # Concurrency
//
// Sessions are single-threaded: each session is driven by one goroutine at
// a time (typically the render thread for video and the mixer thread for
// audio on separate sessions). Buffers returned from retrieval calls are
// borrowed and valid only until the next call on the same session.
package movie
