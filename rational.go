package movie

import "math"

// Conversions between byte offsets in the session's virtual PCM stream and
// timestamps in a source stream's native time-base units.
//
// The common container case has a time base of 1/rate, where one native unit
// is exactly one sample period; that path stays in pure integer division.
// Anything else goes through the rational chain:
//
//	seconds = offset / (bytesPerSample * rate)
//	ts      = seconds * timeBase.Den / timeBase.Num

func audioOffsetToTimestamp(offset int64, bytesPerSample, rate int, tb Rational) int64 {
	if offset == 0 || bytesPerSample == 0 || rate == 0 {
		return 0
	}
	if tb.Num == 1 && tb.Den == rate {
		return offset / int64(bytesPerSample)
	}
	if tb.Num == 0 {
		return 0
	}
	return offset * int64(tb.Den) / (int64(bytesPerSample) * int64(rate) * int64(tb.Num))
}

func audioTimestampToOffset(ts int64, bytesPerSample, rate int, tb Rational) int64 {
	if ts == 0 {
		return 0
	}
	if tb.Num == 1 && tb.Den == rate {
		return ts * int64(bytesPerSample)
	}
	if tb.Den == 0 {
		return 0
	}
	return ts * int64(tb.Num) * int64(rate) * int64(bytesPerSample) / int64(tb.Den)
}

// timestampForSeconds converts wall-clock seconds into a stream's native
// time-base units, rounded to the nearest integer unit.
func timestampForSeconds(seconds float64, tb Rational) int64 {
	unit := tb.Seconds()
	if unit == 0 {
		return 0
	}
	return int64(math.Round(seconds / unit))
}
