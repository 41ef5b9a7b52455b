//go:build !((darwin || linux) && !noffmpeg)

package movie

import "errors"

// ErrBackendUnavailable is returned by OpenFFmpeg when libmovie_ffmpeg
// cannot be loaded on this platform.
var ErrBackendUnavailable = errors.New("ffmpeg backend unavailable")

// OpenFFmpeg is unavailable on this platform; supply a DemuxOpener.
func OpenFFmpeg(path string) (Demuxer, error) {
	return nil, ErrBackendUnavailable
}

// IsFFmpegAvailable reports whether libmovie_ffmpeg can be loaded.
func IsFFmpegAvailable() bool { return false }
