package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func (r *ExtractionRepository) Save(ctx context.Context, record *domain.ExtractionRecord) error {
	structured, err := json.Marshal(record.Structured)
	if err != nil {
		return fmt.Errorf("marshal structured record: %w", err)
	}

	const query = `
INSERT INTO extraction_records (id, source_ref, extracted_text, structured, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.SourceRef,
		record.ExtractedText,
		structured,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert extraction record: %w", err)
	}
	return nil
}

func (r *ExtractionRepository) GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error) {
	const query = `
SELECT id, source_ref, extracted_text, structured, created_at
FROM extraction_records
WHERE id = $1
`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get extraction record", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("query extraction record: %w", err)
	}
	return record, nil
}

func (r *ExtractionRepository) ListRecent(ctx context.Context, limit int) ([]domain.ExtractionRecord, error) {
	const query = `
SELECT id, source_ref, extracted_text, structured, created_at
FROM extraction_records
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query extraction records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction records: %w", err)
	}
	return out, nil
}

// ListStructured returns stored structured records, newest first. An empty
// name matches every company.
func (r *ExtractionRepository) ListStructured(ctx context.Context, name string, limit int) ([]domain.StructuredFinancials, error) {
	const query = `
SELECT structured
FROM extraction_records
WHERE $1 = '' OR structured->>'name' = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query structured records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StructuredFinancials, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan structured record: %w", err)
		}
		var s domain.StructuredFinancials
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode structured record: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate structured records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ExtractionRecord, error) {
	var (
		record     domain.ExtractionRecord
		structured []byte
	)
	if err := row.Scan(&record.ID, &record.SourceRef, &record.ExtractedText, &structured, &record.CreatedAt); err != nil {
		return nil, err
	}
	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &record.Structured); err != nil {
			return nil, fmt.Errorf("decode structured record: %w", err)
		}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}
