package tts

import "strings"

// voiceSeparator splits a voice id into its language/gender prefix and name
const voiceSeparator = "_"

// ExpectedLanguage infers the language a voice id implies from its prefix.
// "af_bella" → a, "bf_emma" → b, "ff_siwis" → f. Voices without a separator or
// with an unrecognized prefix return false; that is not an error.
func ExpectedLanguage(voice string) (LanguageCode, bool) {
	if voice == "" || !strings.Contains(voice, voiceSeparator) {
		return "", false
	}

	prefix, _, _ := strings.Cut(voice, voiceSeparator)
	if prefix == "" {
		return "", false
	}

	first := LanguageCode(strings.ToLower(prefix[:1]))
	if !first.Valid() {
		return "", false
	}
	return first, true
}

// ValidateVoiceLanguage returns *VoiceLanguageMismatch when the voice prefix
// implies a language other than lang. Unknown prefixes never block.
func ValidateVoiceLanguage(voice string, lang LanguageCode) error {
	implied, ok := ExpectedLanguage(voice)
	if !ok || implied == lang {
		return nil
	}
	return &VoiceLanguageMismatch{
		Voice:     voice,
		Implied:   implied,
		Requested: lang,
	}
}
