package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/fin-extract/internal/config"
	"github.com/kirillkom/fin-extract/internal/core/financials"
	"github.com/kirillkom/fin-extract/internal/core/ports"
	"github.com/kirillkom/fin-extract/internal/core/usecase"
	"github.com/kirillkom/fin-extract/internal/infrastructure/extractor/document"
	"github.com/kirillkom/fin-extract/internal/infrastructure/llm/claude"
	"github.com/kirillkom/fin-extract/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/fin-extract/internal/infrastructure/llm/ollama"
	geminiocr "github.com/kirillkom/fin-extract/internal/infrastructure/ocr/gemini"
	"github.com/kirillkom/fin-extract/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/fin-extract/internal/infrastructure/queue/nats"
	"github.com/kirillkom/fin-extract/internal/infrastructure/quizbank"
	"github.com/kirillkom/fin-extract/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
	"github.com/kirillkom/fin-extract/internal/infrastructure/storage/localfs"
)

const publishTimeoutSeconds = 5

// Options tune wiring per binary.
type Options struct {
	Observer ports.ExtractionObserver
	// QueueLag receives publish-to-delivery delays of extraction requests.
	QueueLag func(time.Duration)
	// SeedQuiz upserts the quiz bank on startup.
	SeedQuiz bool
	// QueueOptional keeps the process running without NATS; Enqueue then
	// reports a temporary failure.
	QueueOptional bool
}

type App struct {
	Config config.Config

	Queue   ports.ExtractionQueue
	Storage *localfs.Storage

	ExtractUC   ports.FinancialsExtractor
	UploadUC    ports.DocumentUploader
	ReaderUC    ports.ExtractionReader
	AggregateUC ports.SeriesAggregator
	QuizUC      ports.QuizService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	extractionRepo := postgres.NewExtractionRepository(db)
	quizRepo := postgres.NewQuizRepository(db)

	if opts.SeedQuiz {
		bank, err := quizbank.Load(cfg.QuizSeedPath)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load quiz bank: %w", err)
		}
		if err := quizbank.Seed(ctx, quizRepo, bank); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed quiz bank: %w", err)
		}
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var (
		queue     ports.ExtractionQueue
		closeNATS = func() {}
	)
	natsQueue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: newExecutor(cfg, publishTimeoutSeconds),
		OnQueueLag:         opts.QueueLag,
	})
	switch {
	case err == nil:
		queue = natsQueue
		closeNATS = natsQueue.Close
	case opts.QueueOptional:
		slog.Warn("extraction_queue_unavailable", "url", cfg.NATSURL, "error", err)
	default:
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	completer, ocr, err := buildModelClients(ctx, cfg)
	if err != nil {
		closeNATS()
		_ = db.Close()
		return nil, err
	}

	extractor := document.New(ocr, storage, document.Config{
		Timeout:     time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		MaxBytes:    cfg.FetchMaxBytes,
		LocalPrefix: storage.Prefix(),
	})
	normalizer := financials.NewNormalizer(cfg.NormalizerLenient)

	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &App{
		Config:  cfg,
		Queue:   queue,
		Storage: storage,

		ExtractUC:   usecase.NewExtractFinancialsUseCase(extractor, completer, normalizer, extractionRepo, queue, observer, cfg.PromptMaxChars),
		UploadUC:    usecase.NewUploadDocumentUseCase(storage),
		ReaderUC:    usecase.NewListExtractionsUseCase(extractionRepo),
		AggregateUC: usecase.NewAggregateSeriesUseCase(extractionRepo, observer),
		QuizUC:      usecase.NewQuizUseCase(quizRepo),

		closeFn: func() {
			closeNATS()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// buildModelClients selects the completion provider and OCR engine. Gemini
// shares one SDK client between both roles.
func buildModelClients(ctx context.Context, cfg config.Config) (ports.Completer, ports.OCREngine, error) {
	llmExec := newExecutor(cfg, cfg.LLMTimeoutSeconds)
	ocrExec := newExecutor(cfg, cfg.OCRTimeoutSeconds)

	var models gemini.ContentGenerator
	geminiModels := func() (gemini.ContentGenerator, error) {
		if models != nil {
			return models, nil
		}
		m, err := gemini.NewContentGenerator(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		models = m
		return models, nil
	}

	var completer ports.Completer
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		completer = ollama.New(ollama.Config{
			BaseURL:     cfg.OllamaURL,
			Model:       cfg.OllamaModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		}, llmExec)
	case config.ProviderAnthropic:
		client, err := claude.New(claude.Config{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		}, llmExec)
		if err != nil {
			return nil, nil, fmt.Errorf("init anthropic client: %w", err)
		}
		completer = client
	case config.ProviderGemini:
		m, err := geminiModels()
		if err != nil {
			return nil, nil, err
		}
		completer = gemini.New(m, gemini.Config{
			Model:       cfg.GeminiModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		}, llmExec)
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}

	var ocr ports.OCREngine
	switch cfg.OCREngine {
	case config.OCRTesseract:
		ocr = tesseract.New(cfg.TesseractPath, cfg.TesseractLang, ocrExec)
	case config.OCRGemini:
		m, err := geminiModels()
		if err != nil {
			return nil, nil, err
		}
		ocr = geminiocr.New(m, cfg.GeminiModel, ocrExec)
	default:
		return nil, nil, fmt.Errorf("unsupported ocr engine %q", cfg.OCREngine)
	}

	return completer, ocr, nil
}

func newExecutor(cfg config.Config, timeoutSeconds int) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.BreakerEnabled = cfg.BreakerEnabled
	if timeoutSeconds > 0 {
		rc.CallTimeout = time.Duration(timeoutSeconds) * time.Second
	}
	return resilience.NewExecutor(rc)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, error, float64) {}
func (noopObserver) ObserveAggregation(int, int, int)   {}
