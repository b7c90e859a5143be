package tts

import (
	"errors"
	"fmt"
)

// ErrNoAudio is returned when the engine finishes without emitting any chunk
var ErrNoAudio = errors.New("no audio produced")

// ValidationError reports a caller-input problem detected before synthesis
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// VoiceLanguageMismatch is a ValidationError variant raised when a voice id
// implies a different language than the one requested.
type VoiceLanguageMismatch struct {
	Voice     string
	Implied   LanguageCode
	Requested LanguageCode
}

func (e *VoiceLanguageMismatch) Error() string {
	return fmt.Sprintf("Voice '%s' implies lang '%s', but got lang '%s'.", e.Voice, e.Implied, e.Requested)
}

// IsValidationError reports whether err is a caller-input problem
func IsValidationError(err error) bool {
	var ve *ValidationError
	var mm *VoiceLanguageMismatch
	return errors.As(err, &ve) || errors.As(err, &mm)
}

// Synthesis stages reported in SynthesisFailure
const (
	StagePipeline = "pipeline" // constructing or looking up the language pipeline
	StageGenerate = "generate" // starting the engine's chunk sequence
	StageStream   = "stream"   // draining the chunk sequence
	StageEncode   = "encode"   // WAV encoding
)

// SynthesisFailure reports that the external engine failed or produced nothing
type SynthesisFailure struct {
	Stage    string
	Language LanguageCode
	Err      error
}

func (e *SynthesisFailure) Error() string {
	return fmt.Sprintf("synthesis failed at %s (lang %s): %v", e.Stage, e.Language, e.Err)
}

func (e *SynthesisFailure) Unwrap() error {
	return e.Err
}
