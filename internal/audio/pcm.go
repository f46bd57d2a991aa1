package audio

import (
	"encoding/binary"
	"math"
)

// IsSilent reports whether every int16 sample in frame is zero.
// An empty frame is silent.
func IsSilent(frame []byte) bool {
	for _, b := range frame {
		if b != 0 {
			return false
		}
	}
	return true
}

// Level describes the loudness of a PCM16LE block
type Level struct {
	Peak int     // absolute peak sample value
	RMS  float64 // root mean square of the samples
	DBFS float64 // RMS relative to full scale; -Inf for digital silence
}

// MeasureLevel computes peak, RMS and dBFS of a PCM16LE block. A trailing odd byte is ignored.
func MeasureLevel(frame []byte) Level {
	samples := len(frame) / BytesPerSample
	if samples == 0 {
		return Level{DBFS: math.Inf(-1)}
	}

	var sum float64
	peak := 0
	for i := 0; i < samples; i++ {
		v := int(int16(binary.LittleEndian.Uint16(frame[i*BytesPerSample:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
		sum += float64(v) * float64(v)
	}

	rms := math.Sqrt(sum / float64(samples))
	return Level{
		Peak: peak,
		RMS:  rms,
		DBFS: 20 * math.Log10(rms/32768.0),
	}
}

// DurationMs returns how long n bytes of PCM16 mono audio last at SampleRate, in milliseconds
func DurationMs(n int) int {
	return n * 1000 / (SampleRate * BytesPerSample)
}
