package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/financials"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

const (
	defaultStoredLimit = 200
	maxStoredLimit     = 1000
)

type AggregateSeriesUseCase struct {
	repo     ports.ExtractionRepository
	observer ports.ExtractionObserver
}

func NewAggregateSeriesUseCase(repo ports.ExtractionRepository, observer ports.ExtractionObserver) *AggregateSeriesUseCase {
	return &AggregateSeriesUseCase{repo: repo, observer: observer}
}

func (uc *AggregateSeriesUseCase) Aggregate(ctx context.Context, records []domain.StructuredFinancials, strict bool) (*domain.AggregationResult, error) {
	result, err := financials.Aggregate(records, financials.AggregateOptions{Strict: strict})
	if err != nil {
		slog.WarnContext(ctx, "aggregation_aborted", "records", len(records), "error", err.Error())
		return nil, fmt.Errorf("aggregate records: %w", err)
	}
	if uc.observer != nil {
		uc.observer.ObserveAggregation(len(result.Series), len(result.Skipped), len(result.Duplicates))
	}
	if len(result.Skipped) > 0 || len(result.Duplicates) > 0 {
		slog.InfoContext(ctx, "aggregation_adjusted",
			"records", len(records),
			"skipped", len(result.Skipped),
			"duplicates", len(result.Duplicates),
		)
	}
	return result, nil
}

// AggregateStored rebuilds series from persisted records, oldest first, so a
// later extraction of the same period wins.
func (uc *AggregateSeriesUseCase) AggregateStored(ctx context.Context, name string, limit int) (*domain.AggregationResult, error) {
	if limit <= 0 {
		limit = defaultStoredLimit
	}
	if limit > maxStoredLimit {
		limit = maxStoredLimit
	}
	records, err := uc.repo.ListStructured(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list stored records: %w", err)
	}
	// ListStructured returns newest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return uc.Aggregate(ctx, records, false)
}

type ListExtractionsUseCase struct {
	repo ports.ExtractionRepository
}

func NewListExtractionsUseCase(repo ports.ExtractionRepository) *ListExtractionsUseCase {
	return &ListExtractionsUseCase{repo: repo}
}

func (uc *ListExtractionsUseCase) GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error) {
	record, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get extraction record: %w", err)
	}
	return record, nil
}

func (uc *ListExtractionsUseCase) ListRecent(ctx context.Context, limit int) ([]domain.ExtractionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxStoredLimit {
		limit = maxStoredLimit
	}
	records, err := uc.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list extraction records: %w", err)
	}
	return records, nil
}
