package tts

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/audio"
	"github.com/lexiqai/tts-api/internal/observability"
)

// outputChannels is the channel layout of the engine's output
const outputChannels = 1

// Synthesizer turns validated requests into WAV audio using registry pipelines
type Synthesizer struct {
	registry   *Registry
	sampleRate int
	concurrent bool
	logger     zerolog.Logger
}

// SynthesizerOption configures a Synthesizer
type SynthesizerOption func(*Synthesizer)

// WithConcurrentPipelines declares the engine reentrant, so synthesis calls on
// the same pipeline are not serialized.
func WithConcurrentPipelines() SynthesizerOption {
	return func(s *Synthesizer) {
		s.concurrent = true
	}
}

// NewSynthesizer creates a synthesizer encoding at sampleRate.
// The rate is written into every WAV header as is; engine output is never
// resampled, so it must match the rate the model actually produces.
func NewSynthesizer(registry *Registry, sampleRate int, logger zerolog.Logger, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		registry:   registry,
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "synthesizer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize runs one synthesis. Errors from the engine, and an engine that
// yields no chunks, are reported as *SynthesisFailure. Nothing is retried.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	lang := req.Language

	result, err := s.synthesize(ctx, req, start)
	if err != nil {
		observability.RecordSynthesis(lang.String(), time.Since(start), 0, false)
		return nil, err
	}

	observability.RecordSynthesis(lang.String(), result.Latency, len(result.WAV), true)
	return result, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, req Request, start time.Time) (*Result, error) {
	lang := req.Language

	entry, err := s.registry.entry(ctx, lang)
	if err != nil {
		return nil, &SynthesisFailure{Stage: StagePipeline, Language: lang, Err: err}
	}

	if !s.concurrent {
		entry.mu.Lock()
		defer entry.mu.Unlock()
	}

	chunks, err := drain(ctx, entry.pipeline, req)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &SynthesisFailure{Stage: StageStream, Language: lang, Err: ErrNoAudio}
	}

	samples := audio.Concat(chunks)
	if clipped := audio.Clip(samples); clipped > 0 {
		s.logger.Debug().
			Str("lang", lang.String()).
			Int("clipped", clipped).
			Int("samples", len(samples)).
			Msg("Clipped out-of-range samples")
	}

	wav, err := audio.EncodeWAV(audio.FloatToPCM16(samples), s.sampleRate, outputChannels)
	if err != nil {
		return nil, &SynthesisFailure{Stage: StageEncode, Language: lang, Err: err}
	}

	result := &Result{
		WAV:        wav,
		SampleRate: s.sampleRate,
		Samples:    len(samples),
		Chunks:     len(chunks),
		Latency:    time.Since(start),
	}

	s.logger.Debug().
		Str("lang", lang.String()).
		Int("chunks", result.Chunks).
		Int("samples", result.Samples).
		Float64("peak", audio.Peak(samples)).
		Float64("rms", audio.RMS(samples)).
		Msg("Synthesis complete")

	return result, nil
}

// drain consumes the engine's chunk sequence once, in emission order
func drain(ctx context.Context, pipeline Pipeline, req Request) ([][]float32, error) {
	stream, err := pipeline.Generate(ctx, req.Text, req.Voice, req.Speed)
	if err != nil {
		return nil, &SynthesisFailure{Stage: StageGenerate, Language: req.Language, Err: err}
	}
	defer stream.Close()

	var chunks [][]float32
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, &SynthesisFailure{Stage: StageStream, Language: req.Language, Err: err}
		}
		if len(chunk) == 0 {
			continue
		}
		chunks = append(chunks, chunk)
	}
}
