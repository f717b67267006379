// Package langdetect identifies the language of a text. Classifiers are
// opaque: callers only see a lowercase ISO 639-1 tag, or "und" when nothing
// could be identified.
package langdetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/domain"
)

// Undetermined is returned for texts without any identifiable language,
// such as empty or symbol-only input.
const Undetermined = domain.UndeterminedLanguage

// ErrDetectionFailed is returned when the classifier itself fails. Texts that
// simply have no recognizable language are not an error.
var ErrDetectionFailed = errors.New("language detection failed")

// ErrUnavailable marks a detection failure caused by the classifier being
// temporarily unreachable (rate limits, server errors, timeouts). Such
// failures are worth retrying later.
var ErrUnavailable = errors.New("language classifier unavailable")

// Detector identifies the language of a text.
type Detector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// hasLetters reports whether text contains at least one letter. Classifiers
// are only consulted for such texts.
func hasLetters(text string) bool {
	return strings.IndexFunc(text, unicode.IsLetter) >= 0
}

// New builds the detector selected by cfg.Provider.
func New(ctx context.Context, cfg config.LangDetectConfig, log *slog.Logger) (Detector, error) {
	switch cfg.Provider {
	case "", "lingua":
		return NewLinguaDetector(), nil
	case "gemini":
		return NewGeminiDetector(ctx, GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.Model,
			MaxRetries: 3,
		}, log)
	default:
		return nil, fmt.Errorf("unknown language detection provider %q", cfg.Provider)
	}
}
