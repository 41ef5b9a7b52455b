package movie

import "errors"

// AudioChunk copies length bytes of decoded PCM starting at byte offset of
// the virtual audio stream into dst, decoding and resampling more of the
// source as needed. It returns the number of requested bytes that could not
// be produced: 0 means dst[0:length] was fully written, and a request that
// lies entirely beyond the end of the soundtrack returns length.
//
// The original recursive retry is an explicit loop here. It terminates
// because every iteration either returns, or ends with a refill that must
// extend the cache past offset for the loop to continue; a refill that
// cannot (zero bytes decoded, or the run ends before offset) returns the
// remaining length as unmet.
func (s *Session) AudioChunk(dst []byte, offset, length int) int {
	if !s.IsActive() || s.audioStream < 0 {
		return length
	}
	if length <= 0 {
		return 0
	}
	if length > len(dst) {
		length = len(dst)
	}

	out := dst[:length]
	remain := length

	for {
		// Serve whatever the cache already covers.
		if s.haveCache && int64(offset) >= s.cacheOff {
			pos := int64(offset) - s.cacheOff
			if pos < int64(s.cacheLen) {
				avail := s.cacheLen - int(pos)
				if avail >= remain {
					copy(out[:remain], s.cache[pos:int(pos)+remain])
					return 0
				}
				copy(out[:avail], s.cache[pos:int(pos)+avail])
				out = out[avail:]
				offset += avail
				remain -= avail
			}
			s.haveCache = false
		}

		// Anything at or past the pinned end of audio can never be produced.
		if int64(offset) >= s.audioEOFPos {
			return remain
		}

		if !s.refillAudioCache(int64(offset)) {
			return remain
		}
		if s.cacheOff+int64(s.cacheLen) <= int64(offset) {
			// The refilled run ended before reaching offset.
			return remain
		}
	}
}

// seekAudio positions the audio stream near ts and loads into s.pkt the
// last packet whose timestamp does not exceed ts. Audio has no keyframes,
// so any decode point is valid and the seek may land on any frame.
func (s *Session) seekAudio(ts int64) error {
	s.audioPending = false

	if err := s.demux.Seek(s.audioStream, ts, true); err != nil {
		if errors.Is(err, ErrEOF) {
			return ErrEOF
		}
		s.logger.Error("audio seek failed", "target", ts, "error", err)
	}

	valid := false
	for {
		if err := s.demux.ReadPacket(s.pktSeek); err != nil {
			break
		}
		if s.pktSeek.StreamIndex != s.audioStream {
			s.pktSeek.Reset()
			continue
		}
		if s.pktSeek.DTS > ts {
			// The decoded run must stay gapless: this packet is the next one
			// to decode after the retained packet, so hold it for the refill
			// loop instead of dropping it.
			s.audioPending = true
			break
		}
		valid = true
		s.pktSeek.MoveTo(s.pkt)
	}

	if !valid {
		return ErrEOF
	}
	return nil
}

// refillAudioCache reseeds the cache with a forward run of decoded PCM
// starting at or before offset and decodes until the cache fills, the
// soundtrack ends, or a decode error stops it. It reports whether the cache
// holds any bytes afterwards.
func (s *Session) refillAudioCache(offset int64) bool {
	info := s.demux.Streams()[s.audioStream]
	bps := s.channels * s.sampleFmt.BytesPerSample()

	ts := audioOffsetToTimestamp(offset, bps, s.rate, info.TimeBase)
	if err := s.seekAudio(ts); err != nil {
		return false
	}

	s.cacheOff = audioTimestampToOffset(s.pkt.DTS, bps, s.rate, info.TimeBase)
	s.cacheLen = 0
	s.haveCache = true

	for {
		if err := s.decode(s.audioDec, s.pkt, s.frame); err != nil {
			s.pkt.Reset()
			if errors.Is(err, ErrAgain) && s.nextAudioPacket() {
				continue
			}
			break
		}
		s.pkt.Reset()

		size := s.frame.SampleCount * bps
		if s.cacheLen+size > len(s.cache) {
			if s.cacheLen != 0 {
				// Stop this round early and serve what is cached; later
				// calls decode the rest.
				s.frame.Reset()
				break
			}
			// Even one decoded frame does not fit: grow in place.
			s.cache = make([]byte, size*2)
		}

		n, err := s.resamp.Resample(s.frame, s.cache[s.cacheLen:s.cacheLen+size])
		s.frame.Reset()
		if err != nil {
			s.logger.Error("audio resample failed", "error", err)
			break
		}
		s.cacheLen += n

		// Soundtrack has ended and the cache reaches it.
		if s.cacheOff+int64(s.cacheLen) >= s.audioEOFPos {
			break
		}

		if !s.nextAudioPacket() {
			// End of container: pin the end of audio to the total decoded
			// length. Once pinned it never moves.
			s.audioEOFPos = s.cacheOff + int64(s.cacheLen)
			break
		}
	}

	if s.cacheLen == 0 {
		s.haveCache = false
		return false
	}
	return true
}

// nextAudioPacket advances s.pkt to the next audio packet, skipping other
// streams. It reports false at end of container.
func (s *Session) nextAudioPacket() bool {
	if s.audioPending {
		s.audioPending = false
		s.pktSeek.MoveTo(s.pkt)
		return true
	}
	for {
		if err := s.demux.ReadPacket(s.pktSeek); err != nil {
			return false
		}
		if s.pktSeek.StreamIndex != s.audioStream {
			s.pktSeek.Reset()
			continue
		}
		s.pktSeek.MoveTo(s.pkt)
		return true
	}
}
