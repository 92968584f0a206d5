package ports

import (
	"context"
	"io"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

// DocumentUploader is the inbound contract of the object storage collaborator.
type DocumentUploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (*domain.StoredObject, error)
}

// FinancialsExtractor runs the extraction pipeline for one source document.
type FinancialsExtractor interface {
	Extract(ctx context.Context, sourceRef string) (*domain.ExtractionRecord, error)
	Enqueue(ctx context.Context, sourceRef string) error
}

// ExtractionReader is the read model over persisted extraction records.
type ExtractionReader interface {
	GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ExtractionRecord, error)
}

// SeriesAggregator folds structured records into per-company series.
type SeriesAggregator interface {
	Aggregate(ctx context.Context, records []domain.StructuredFinancials, strict bool) (*domain.AggregationResult, error)
	AggregateStored(ctx context.Context, name string, limit int) (*domain.AggregationResult, error)
}

// QuizService serves the problem bank and random comparison questions.
type QuizService interface {
	ListProblems(ctx context.Context) ([]domain.Problem, error)
	GetProblem(ctx context.Context, id string) (*domain.Problem, error)
	Sample(ctx context.Context, quizType int, section domain.QuizSection, count int) (*domain.QuizSample, error)
}
