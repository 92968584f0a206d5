package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/financials"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

const (
	StageExtract   = "extract"
	StagePrompt    = "prompt"
	StageComplete  = "complete"
	StageNormalize = "normalize"
	StageSave      = "save"
)

type ExtractFinancialsUseCase struct {
	extractor      ports.TextExtractor
	completer      ports.Completer
	normalizer     ports.ResponseNormalizer
	repo           ports.ExtractionRepository
	queue          ports.ExtractionQueue
	observer       ports.ExtractionObserver
	tracer         trace.Tracer
	promptMaxChars int
	now            func() time.Time
}

func NewExtractFinancialsUseCase(
	extractor ports.TextExtractor,
	completer ports.Completer,
	normalizer ports.ResponseNormalizer,
	repo ports.ExtractionRepository,
	queue ports.ExtractionQueue,
	observer ports.ExtractionObserver,
	promptMaxChars int,
) *ExtractFinancialsUseCase {
	return &ExtractFinancialsUseCase{
		extractor:      extractor,
		completer:      completer,
		normalizer:     normalizer,
		repo:           repo,
		queue:          queue,
		observer:       observer,
		tracer:         otel.Tracer("github.com/kirillkom/fin-extract/internal/core/usecase"),
		promptMaxChars: promptMaxChars,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Extract runs the pipeline once for sourceRef and persists the result. Any
// stage failure ends the request; nothing is saved in that case.
func (uc *ExtractFinancialsUseCase) Extract(ctx context.Context, sourceRef string) (*domain.ExtractionRecord, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if err := validateSourceRef(sourceRef); err != nil {
		return nil, err
	}

	ctx, span := uc.tracer.Start(ctx, "extract_financials", trace.WithAttributes(attribute.String("source_ref", sourceRef)))
	defer span.End()

	started := time.Now()
	record, err := uc.runPipeline(ctx, sourceRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "extraction_failed",
			"source_ref", sourceRef,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("record_id", record.ID))
	slog.InfoContext(ctx, "extraction_completed",
		"record_id", record.ID,
		"source_ref", sourceRef,
		"company", record.Structured.Name,
		"year", int(record.Structured.Year),
		"text_chars", len(record.ExtractedText),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return record, nil
}

// Enqueue hands sourceRef to the worker pool.
func (uc *ExtractFinancialsUseCase) Enqueue(ctx context.Context, sourceRef string) error {
	sourceRef = strings.TrimSpace(sourceRef)
	if err := validateSourceRef(sourceRef); err != nil {
		return err
	}
	if uc.queue == nil {
		return domain.WrapError(domain.ErrTemporary, "enqueue extraction", errors.New("queue is not configured"))
	}
	if err := uc.queue.PublishExtractionRequested(ctx, sourceRef); err != nil {
		return fmt.Errorf("publish extraction request: %w", err)
	}
	slog.InfoContext(ctx, "extraction_enqueued", "source_ref", sourceRef)
	return nil
}

func (uc *ExtractFinancialsUseCase) runPipeline(ctx context.Context, sourceRef string) (*domain.ExtractionRecord, error) {
	var extracted domain.ExtractedText
	err := uc.stage(ctx, StageExtract, func(ctx context.Context) error {
		var err error
		extracted, err = uc.extractText(ctx, sourceRef)
		return err
	})
	if err != nil {
		return nil, err
	}

	var prompt string
	_ = uc.stage(ctx, StagePrompt, func(context.Context) error {
		prompt = financials.BuildExtractionPrompt(extracted.Text, sourceRef, uc.promptMaxChars)
		return nil
	})

	var raw string
	err = uc.stage(ctx, StageComplete, func(ctx context.Context) error {
		var err error
		raw, err = uc.completer.Complete(ctx, prompt)
		if err != nil {
			return fmt.Errorf("complete extraction prompt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var structured domain.StructuredFinancials
	err = uc.stage(ctx, StageNormalize, func(context.Context) error {
		var err error
		structured, err = uc.normalizer.Normalize(raw)
		if err != nil {
			return fmt.Errorf("normalize model output: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record := &domain.ExtractionRecord{
		ID:            uuid.NewString(),
		SourceRef:     sourceRef,
		ExtractedText: extracted.Text,
		Structured:    structured,
		CreatedAt:     uc.now(),
	}
	err = uc.stage(ctx, StageSave, func(ctx context.Context) error {
		if err := uc.repo.Save(ctx, record); err != nil {
			return fmt.Errorf("save extraction record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (uc *ExtractFinancialsUseCase) extractText(ctx context.Context, sourceRef string) (domain.ExtractedText, error) {
	extracted, err := uc.extractor.Extract(ctx, sourceRef)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "extract text", errors.New("empty extracted text"))
	}
	return extracted, nil
}

func (uc *ExtractFinancialsUseCase) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := uc.tracer.Start(ctx, "stage."+name)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if uc.observer != nil {
		uc.observer.ObserveStage(name, err, time.Since(started).Seconds())
	}
	slog.DebugContext(ctx, "extraction_stage", "stage", name, "ok", err == nil)
	return err
}

func validateSourceRef(sourceRef string) error {
	if sourceRef == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate source", errors.New("fileUrl is required"))
	}
	u, err := url.Parse(sourceRef)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate source", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate source", fmt.Errorf("unsupported file url %q", sourceRef))
	}
	return nil
}
