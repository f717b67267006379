package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/platform/langdetect"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/textnorm"
)

// ResultWriter persists a computed result. CompleteTask reports whether the task
// changed; (false, nil) means the task was missing or already completed.
type ResultWriter interface {
	CompleteTask(ctx context.Context, id string, result domain.TaskResult) (bool, error)
}

// Outcome describes one processed message.
type Outcome struct {
	Result  domain.TaskResult
	Applied bool
}

// Processor computes and stores the result for a single message.
type Processor struct {
	detector langdetect.Detector
	writer   ResultWriter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProcessor creates a Processor. m may be nil.
func NewProcessor(
	detector langdetect.Detector,
	writer ResultWriter,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Processor, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("result writer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		detector: detector,
		writer:   writer,
		metrics:  m,
		logger:   logger.With("component", "processor"),
	}, nil
}

// Compute derives the result for msg without persisting it. The word count is
// taken from the cleaned text; the language is detected on the original text.
// A panic inside the pipeline is reported as ErrProcessingFailure.
func (p *Processor) Compute(ctx context.Context, msg Message) (result domain.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProcessingFailure, r)
		}
	}()

	start := time.Now()
	defer func() { p.metrics.ObserveProcessingDuration(time.Since(start)) }()

	cleaned := textnorm.Clean(msg.Text)
	lang, err := p.detector.Detect(ctx, msg.Text)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("%w: %w", ErrProcessingFailure, err)
	}

	return domain.TaskResult{
		ProcessedText: cleaned,
		WordCount:     textnorm.WordCount(cleaned),
		Language:      lang,
	}, nil
}

// Process computes the result for msg and writes it. Writer errors caused by
// an invalid result are processing failures; any other writer error is a
// persistence failure.
func (p *Processor) Process(ctx context.Context, msg Message) (Outcome, error) {
	log := p.logger.With("task_id", msg.TaskID, "type", string(msg.Type))

	result, err := p.Compute(ctx, msg)
	if err != nil {
		log.Error("failed to compute task result", "error", err)
		return Outcome{}, err
	}

	applied, err := p.writer.CompleteTask(ctx, msg.TaskID, result)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return Outcome{}, fmt.Errorf("%w: %w", ErrProcessingFailure, err)
		}
		log.Warn("failed to persist task result", "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	if !applied {
		log.Info("task already completed or missing, result discarded")
	} else {
		log.Debug("task completed",
			"word_count", result.WordCount,
			"language", result.Language)
	}
	return Outcome{Result: result, Applied: applied}, nil
}
