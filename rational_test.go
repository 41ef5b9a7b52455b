package movie

import "testing"

func TestAudioOffsetToTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		bps    int
		rate   int
		tb     Rational
		want   int64
	}{
		{"zero", 0, 4, 44100, Rational{1, 44100}, 0},
		{"sample time base", 17640, 4, 44100, Rational{1, 44100}, 4410},
		{"one second", 176400, 4, 44100, Rational{1, 44100}, 44100},
		{"90k clock", 176400, 4, 44100, Rational{1, 90000}, 90000},
		{"90k clock half", 88200, 4, 44100, Rational{1, 90000}, 45000},
		{"ms clock", 176400, 4, 44100, Rational{1, 1000}, 1000},
		{"zero rate", 100, 4, 0, Rational{1, 44100}, 0},
		{"zero time base", 100, 4, 44100, Rational{0, 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := audioOffsetToTimestamp(tc.offset, tc.bps, tc.rate, tc.tb)
			if got != tc.want {
				t.Errorf("audioOffsetToTimestamp(%d) = %d, want %d", tc.offset, got, tc.want)
			}
		})
	}
}

func TestAudioTimestampToOffset(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		bps  int
		rate int
		tb   Rational
		want int64
	}{
		{"zero", 0, 4, 44100, Rational{1, 44100}, 0},
		{"sample time base", 4410, 4, 44100, Rational{1, 44100}, 17640},
		{"90k clock", 90000, 4, 44100, Rational{1, 90000}, 176400},
		{"ms clock", 1000, 4, 44100, Rational{1, 1000}, 176400},
		{"zero time base", 100, 4, 44100, Rational{1, 0}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := audioTimestampToOffset(tc.ts, tc.bps, tc.rate, tc.tb)
			if got != tc.want {
				t.Errorf("audioTimestampToOffset(%d) = %d, want %d", tc.ts, got, tc.want)
			}
		})
	}
}

func TestOffsetTimestampRoundTrip(t *testing.T) {
	// Packet-aligned offsets must survive the round trip exactly in the
	// common 1/rate case, or the cache origin would drift on reseek.
	for _, offset := range []int64{0, 4096, 65536, 176400, 1 << 30} {
		ts := audioOffsetToTimestamp(offset, 4, 44100, Rational{1, 44100})
		back := audioTimestampToOffset(ts, 4, 44100, Rational{1, 44100})
		if back != offset {
			t.Errorf("round trip of %d = %d", offset, back)
		}
	}
}

func TestTimestampForSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		tb      Rational
		want    int64
	}{
		{0, Rational{1, 25}, 0},
		{1.0, Rational{1, 25}, 25},
		{0.5, Rational{1, 25}, 13}, // rounds to nearest
		{2.0, Rational{1, 44100}, 88200},
		{1.0, Rational{1001, 30000}, 30}, // NTSC 29.97 fps
		{1.0, Rational{0, 1}, 0},
	}
	for _, tc := range tests {
		got := timestampForSeconds(tc.seconds, tc.tb)
		if got != tc.want {
			t.Errorf("timestampForSeconds(%v, %d/%d) = %d, want %d",
				tc.seconds, tc.tb.Num, tc.tb.Den, got, tc.want)
		}
	}
}

func TestRationalSeconds(t *testing.T) {
	if got := (Rational{1, 25}).Seconds(); got != 0.04 {
		t.Errorf("Seconds() = %v, want 0.04", got)
	}
	if got := (Rational{0, 0}).Seconds(); got != 0 {
		t.Errorf("Seconds() on zero rational = %v, want 0", got)
	}
}
