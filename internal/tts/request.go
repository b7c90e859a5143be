package tts

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Limits bounds the inputs accepted by the API
type Limits struct {
	MaxChars int
	MinSpeed float64
	MaxSpeed float64
}

// ClampSpeed returns speed clamped into [MinSpeed, MaxSpeed]
func (l Limits) ClampSpeed(speed float64) float64 {
	return math.Max(l.MinSpeed, math.Min(l.MaxSpeed, speed))
}

// Normalize validates req and returns a copy with the speed clamped.
// Text length is counted in characters, not bytes.
func (l Limits) Normalize(req Request) (Request, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Request{}, &ValidationError{Field: "text", Message: "must not be empty"}
	}
	if n := utf8.RuneCountInString(req.Text); n > l.MaxChars {
		return Request{}, &ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("length %d exceeds the limit of %d characters", n, l.MaxChars),
		}
	}
	if !req.Language.Valid() {
		return Request{}, &ValidationError{
			Field:   "lang",
			Message: fmt.Sprintf("unsupported language code %q (expected one of a, b, f)", string(req.Language)),
		}
	}
	if req.Voice == "" {
		return Request{}, &ValidationError{Field: "voice", Message: "must not be empty"}
	}
	if math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) || req.Speed <= 0 {
		return Request{}, &ValidationError{
			Field:   "speed",
			Message: fmt.Sprintf("must be a positive number, got %v", req.Speed),
		}
	}
	if err := ValidateVoiceLanguage(req.Voice, req.Language); err != nil {
		return Request{}, err
	}

	req.Speed = l.ClampSpeed(req.Speed)
	return req, nil
}
