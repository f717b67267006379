package langdetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// maxPromptRunes bounds how much of a text is sent to the model. A prefix is
// enough to identify the language of long articles.
const maxPromptRunes = 2000

const systemPrompt = "You identify the language of the text the user sends. " +
	"Answer with only the lowercase ISO 639-1 code of its main language, " +
	"or und if no language can be identified."

var languageTag = regexp.MustCompile(`^[a-z]{2,3}$`)

// ContentGenerator is the part of the genai client the detector needs.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini detector.
type GeminiConfig struct {
	APIKey     string
	Model      string
	MaxRetries uint64
	RetryBase  time.Duration
}

// GeminiDetector asks a Gemini model for the language of a text.
type GeminiDetector struct {
	models ContentGenerator
	cfg    GeminiConfig
	log    *slog.Logger
}

var _ Detector = (*GeminiDetector)(nil)

// NewGeminiDetector creates a detector backed by the Gemini API.
func NewGeminiDetector(ctx context.Context, cfg GeminiConfig, log *slog.Logger) (*GeminiDetector, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewGeminiDetectorWithClient(client.Models, cfg, log), nil
}

// NewGeminiDetectorWithClient creates a detector over an existing generator.
func NewGeminiDetectorWithClient(models ContentGenerator, cfg GeminiConfig, log *slog.Logger) *GeminiDetector {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &GeminiDetector{
		models: models,
		cfg:    cfg,
		log:    log.With("component", "gemini_langdetect", "model", cfg.Model),
	}
}

// Detect returns the language code the model answers with. Transient API
// failures are retried with exponential backoff.
func (d *GeminiDetector) Detect(ctx context.Context, text string) (string, error) {
	if !hasLetters(text) {
		return Undetermined, nil
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   8,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	contents := genai.Text(truncate(text, maxPromptRunes))

	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.RetryBase))
	attempt := 0
	resp, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		attempt++
		resp, err := d.models.GenerateContent(ctx, d.cfg.Model, contents, config)
		if err != nil {
			if isTransient(err) {
				d.log.WarnContext(ctx, "transient Gemini error, retrying", "attempt", attempt, "error", err)
				return nil, retry.RetryableError(err)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if isTransient(err) {
			return "", fmt.Errorf("%w: %w: %w", ErrDetectionFailed, ErrUnavailable, err)
		}
		return "", fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text()))
	answer = strings.Trim(answer, ".\"'`")
	if !languageTag.MatchString(answer) {
		return "", fmt.Errorf("%w: unexpected model answer %q", ErrDetectionFailed, answer)
	}
	return answer, nil
}

func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, maxRunes int) string {
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
