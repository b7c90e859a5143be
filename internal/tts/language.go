package tts

import "fmt"

// LanguageCode identifies a spoken-language variant supported by the engine
type LanguageCode string

const (
	LangAmericanEnglish LanguageCode = "a" // en-US
	LangBritishEnglish  LanguageCode = "b" // en-GB
	LangFrench          LanguageCode = "f" // fr
)

// Languages lists every supported language code
var Languages = []LanguageCode{LangAmericanEnglish, LangBritishEnglish, LangFrench}

// Valid reports whether l is one of the supported codes
func (l LanguageCode) Valid() bool {
	switch l {
	case LangAmericanEnglish, LangBritishEnglish, LangFrench:
		return true
	}
	return false
}

func (l LanguageCode) String() string {
	return string(l)
}

// ParseLanguage converts s into a LanguageCode
func ParseLanguage(s string) (LanguageCode, error) {
	l := LanguageCode(s)
	if !l.Valid() {
		return "", fmt.Errorf("unsupported language code %q (expected one of a, b, f)", s)
	}
	return l, nil
}
