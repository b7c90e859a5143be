package tts

import (
	"context"
	"time"
)

// PipelineFactory constructs synthesis pipelines on the external engine.
// Construction is expensive (model weights, voice packs) and is only
// performed through a Registry.
type PipelineFactory interface {
	NewPipeline(ctx context.Context, repoID string, lang LanguageCode) (Pipeline, error)
}

// Pipeline is a loaded synthesis pipeline bound to one language code.
type Pipeline interface {
	// Generate starts a synthesis and returns the chunk sequence it produces
	Generate(ctx context.Context, text, voice string, speed float64) (ChunkStream, error)
}

// ChunkStream is a lazy, finite, single-pass sequence of float audio chunks.
// Next returns io.EOF once the sequence is exhausted.
type ChunkStream interface {
	Next() ([]float32, error)
	Close() error
}

// Request holds validated synthesis parameters
type Request struct {
	Text     string
	Language LanguageCode
	Voice    string
	Speed    float64
}

// Result is the encoded output of one synthesis
type Result struct {
	WAV        []byte        // RIFF/WAVE, PCM signed 16-bit, mono
	SampleRate int           // Sample rate written into the WAV header
	Samples    int           // Number of samples after concatenation
	Chunks     int           // Number of chunks drained from the engine
	Latency    time.Duration // Wall-clock time from pipeline lookup to encoded bytes
}

// LatencyMs returns the latency truncated to whole milliseconds
func (r *Result) LatencyMs() int64 {
	return r.Latency.Milliseconds()
}
