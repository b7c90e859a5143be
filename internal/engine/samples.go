// Package engine connects the synthesis core to an external Kokoro engine
// sidecar. Audio crosses the wire as little-endian float32 samples.
package engine

import (
	"encoding/binary"
	"fmt"
	"math"
)

const bytesPerSample = 4

// EncodeSamples serializes samples as little-endian float32
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(s))
	}
	return out
}

// DecodeSamples parses little-endian float32 samples
func DecodeSamples(data []byte) ([]float32, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("audio frame of %d bytes is not a whole number of float32 samples", len(data))
	}
	out := make([]float32, len(data)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*bytesPerSample:]))
	}
	return out, nil
}
