package engine

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/tts"
)

// ToneServer is a SynthesizerServer that renders one sine burst per word.
// It stands in for the real engine in development and smoke tests.
type ToneServer struct {
	sampleRate int
	amplitude  float64
	charTime   time.Duration
	logger     zerolog.Logger
}

// NewToneServer creates a tone engine producing audio at sampleRate
func NewToneServer(sampleRate int, logger zerolog.Logger) *ToneServer {
	return &ToneServer{
		sampleRate: sampleRate,
		amplitude:  0.3,
		charTime:   60 * time.Millisecond,
		logger:     logger.With().Str("component", "tone_engine").Logger(),
	}
}

func (s *ToneServer) LoadPipeline(ctx context.Context, repoID string, lang tts.LanguageCode) (map[string]interface{}, error) {
	s.logger.Info().
		Str("repo_id", repoID).
		Str("lang", lang.String()).
		Msg("Loaded tone pipeline")
	return map[string]interface{}{
		"engine":      "tone",
		"sample_rate": s.sampleRate,
	}, nil
}

func (s *ToneServer) Synthesize(ctx context.Context, call SynthesisCall, send func([]float32) error) error {
	freq := voiceFrequency(call.Voice)
	for _, word := range strings.Fields(call.Text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(s.burst(word, freq, call.Speed)); err != nil {
			return err
		}
	}
	return nil
}

// burst renders a faded sine lasting in proportion to the word length
func (s *ToneServer) burst(word string, freq, speed float64) []float32 {
	d := time.Duration(float64(len([]rune(word))) * float64(s.charTime) / speed)
	n := int(math.Round(d.Seconds() * float64(s.sampleRate)))
	if n < 1 {
		n = 1
	}

	fade := n / 10
	out := make([]float32, n)
	for i := range out {
		gain := s.amplitude
		if fade > 0 {
			if i < fade {
				gain *= float64(i) / float64(fade)
			} else if i >= n-fade {
				gain *= float64(n-1-i) / float64(fade)
			}
		}
		out[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(s.sampleRate)))
	}
	return out
}

// voiceFrequency maps a voice id to a stable pitch between 180 and 420 Hz
func voiceFrequency(voice string) float64 {
	h := fnv.New32a()
	h.Write([]byte(voice))
	return 180 + float64(h.Sum32()%240)
}
