package textclean

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// UnknownLanguage is recorded when detection is inconclusive.
const UnknownLanguage = "und"

// LanguageDetector identifies the language of cleaned article text.
// Detection runs over a fixed candidate set; building the underlying models
// is expensive, so construct one detector and reuse it across records.
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds a detector over the languages the pipeline's
// sources are expected to publish in.
func NewLanguageDetector() *LanguageDetector {
	languages := []lingua.Language{
		lingua.English,
		lingua.German,
		lingua.French,
		lingua.Spanish,
		lingua.Portuguese,
		lingua.Italian,
		lingua.Dutch,
		lingua.Russian,
		lingua.Japanese,
		lingua.Chinese,
	}
	return &LanguageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// Detect returns the lowercase ISO 639-1 code of text's language, or "und"
// when detection is inconclusive or the text is empty.
func (d *LanguageDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return UnknownLanguage
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return UnknownLanguage
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
