package langdetect

import (
	"context"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// LinguaDetector classifies text with lingua's statistical models. It runs
// in-process and is safe for concurrent use.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

var _ Detector = (*LinguaDetector)(nil)

// NewLinguaDetector builds a detector over all supported languages. Passing
// languages restricts the candidate set, which is faster and more accurate
// when the expected inputs are known.
func NewLinguaDetector(languages ...lingua.Language) *LinguaDetector {
	builder := lingua.NewLanguageDetectorBuilder()
	var b lingua.LanguageDetectorBuilder
	if len(languages) > 0 {
		b = builder.FromLanguages(languages...)
	} else {
		b = builder.FromAllLanguages()
	}
	return &LinguaDetector{detector: b.Build()}
}

// Detect returns the ISO 639-1 code of the most likely language of text.
func (d *LinguaDetector) Detect(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !hasLetters(text) {
		return Undetermined, nil
	}

	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Undetermined, nil
	}
	return strings.ToLower(language.IsoCode639_1().String()), nil
}
