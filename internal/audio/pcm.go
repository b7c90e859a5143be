package audio

import (
	"math"
)

const (
	// pcm16Scale maps [-1.0, 1.0] onto the symmetric int16 range [-32767, 32767]
	pcm16Scale = 32767.0
)

// Concat joins chunks into a new buffer, preserving their order.
// The chunks themselves are never modified or aliased.
func Concat(chunks [][]float32) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}

	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Clip clamps every sample into [-1.0, 1.0] in place and returns how many
// samples were out of range. NaN samples are treated as silence.
func Clip(samples []float32) int {
	clipped := 0
	for i, s := range samples {
		switch {
		case s > 1.0:
			samples[i] = 1.0
			clipped++
		case s < -1.0:
			samples[i] = -1.0
			clipped++
		case math.IsNaN(float64(s)):
			samples[i] = 0
			clipped++
		}
	}
	return clipped
}

// FloatToPCM16 converts samples in [-1.0, 1.0] to signed 16-bit PCM.
// Callers must Clip first; out-of-range input saturates rather than wrapping.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * pcm16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// PCM16ToFloat converts signed 16-bit PCM back to floats in [-1.0, 1.0]
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := float32(s) / pcm16Scale
		if v < -1.0 {
			v = -1.0
		}
		out[i] = v
	}
	return out
}

// Peak returns the largest absolute sample value
func Peak(samples []float32) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS calculates the root mean square of the samples.
// Useful for detecting silent output.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Duration returns the playback time of n samples per channel at sampleRate
func Duration(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate)
}
