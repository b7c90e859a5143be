package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV header constants
const (
	wavHeaderSize   = 44
	wavFmtChunkSize = 16
	wavFormatPCM    = 1
	bitsPerSample16 = 16
)

var (
	ErrNotWAV           = errors.New("not a RIFF/WAVE stream")
	ErrUnsupportedWAV   = errors.New("unsupported WAV encoding (want PCM 16-bit)")
	ErrMissingWAVChunks = errors.New("WAV stream is missing its fmt or data chunk")
)

// WAV is a decoded PCM16 WAV stream
type WAV struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved when Channels > 1
}

// Frames returns the number of samples per channel
func (w *WAV) Frames() int {
	if w.Channels == 0 {
		return 0
	}
	return len(w.Samples) / w.Channels
}

// EncodeWAV wraps interleaved PCM16 samples in a RIFF/WAVE container
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample16 / 8
	blockAlign := channels * bitsPerSample16 / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt subchunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(wavFmtChunkSize))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample16))

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes(), nil
}

// DecodeWAV parses a PCM16 WAV stream. Chunks other than fmt and data are skipped.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w       WAV
		haveFmt bool
		pcm     []byte
		havePCM bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("WAV chunk %q overruns stream", id)
		}

		switch id {
		case "fmt ":
			if size < wavFmtChunkSize {
				return nil, fmt.Errorf("WAV fmt chunk too short: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != wavFormatPCM || bits != bitsPerSample16 {
				return nil, ErrUnsupportedWAV
			}
			w.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
			havePCM = true
		}

		// chunks are word aligned
		pos = body + size + size%2
	}

	if !haveFmt || !havePCM {
		return nil, ErrMissingWAVChunks
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("WAV data length %d is not a whole number of 16-bit samples", len(pcm))
	}

	w.Samples = make([]int16, len(pcm)/2)
	for i := range w.Samples {
		w.Samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return &w, nil
}
