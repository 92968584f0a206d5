package ports

import (
	"context"
	"io"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

// ExtractionRepository is the append-only document store for extraction records.
type ExtractionRepository interface {
	Save(ctx context.Context, record *domain.ExtractionRecord) error
	GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ExtractionRecord, error)
	ListStructured(ctx context.Context, name string, limit int) ([]domain.StructuredFinancials, error)
}

// QuizRepository reads and seeds the question banks.
type QuizRepository interface {
	ListProblems(ctx context.Context) ([]domain.Problem, error)
	GetProblem(ctx context.Context, id string) (*domain.Problem, error)
	GetComparisonSet(ctx context.Context, quizType int) (*domain.ComparisonSet, error)
	UpsertProblem(ctx context.Context, problem domain.Problem) error
	UpsertComparisonSet(ctx context.Context, set domain.ComparisonSet) error
}

// ObjectStorage stores source documents and resolves them to public URLs.
type ObjectStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string
}

// ExtractionQueue publishes/consumes asynchronous extraction requests.
type ExtractionQueue interface {
	PublishExtractionRequested(ctx context.Context, sourceRef string) error
	SubscribeExtractionRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns a source reference into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, sourceRef string) (domain.ExtractedText, error)
}

// OCREngine recognizes text in an image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Completer sends one prompt to a language model and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ResponseNormalizer recovers a structured record from raw model output.
type ResponseNormalizer interface {
	Normalize(raw string) (domain.StructuredFinancials, error)
}

// ExtractionObserver receives pipeline measurements.
type ExtractionObserver interface {
	ObserveStage(stage string, err error, seconds float64)
	ObserveAggregation(companies, skipped, duplicates int)
}
