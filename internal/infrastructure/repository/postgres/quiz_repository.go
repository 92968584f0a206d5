package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

type QuizRepository struct {
	db *sql.DB
}

func NewQuizRepository(db *sql.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

func (r *QuizRepository) ListProblems(ctx context.Context) ([]domain.Problem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, concept, questions FROM quiz_problems ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Problem, 0)
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return out, nil
}

func (r *QuizRepository) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, concept, questions FROM quiz_problems WHERE id = $1`, id)
	p, err := scanProblem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get problem", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("query problem: %w", err)
	}
	return p, nil
}

func (r *QuizRepository) GetComparisonSet(ctx context.Context, quizType int) (*domain.ComparisonSet, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT problems FROM comparison_sets WHERE type = $1`, quizType).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get comparison set", fmt.Errorf("type=%d", quizType))
		}
		return nil, fmt.Errorf("query comparison set: %w", err)
	}
	set := &domain.ComparisonSet{Type: quizType}
	if err := json.Unmarshal(raw, &set.Problems); err != nil {
		return nil, fmt.Errorf("decode comparison set: %w", err)
	}
	return set, nil
}

func (r *QuizRepository) UpsertProblem(ctx context.Context, problem domain.Problem) error {
	questions, err := json.Marshal(problem.Questions)
	if err != nil {
		return fmt.Errorf("marshal problem questions: %w", err)
	}
	const query = `
INSERT INTO quiz_problems (id, concept, questions)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET concept = EXCLUDED.concept, questions = EXCLUDED.questions
`
	if _, err := r.db.ExecContext(ctx, query, problem.ID, problem.Concept, questions); err != nil {
		return fmt.Errorf("upsert problem: %w", err)
	}
	return nil
}

func (r *QuizRepository) UpsertComparisonSet(ctx context.Context, set domain.ComparisonSet) error {
	problems, err := json.Marshal(set.Problems)
	if err != nil {
		return fmt.Errorf("marshal comparison problems: %w", err)
	}
	const query = `
INSERT INTO comparison_sets (type, problems)
VALUES ($1, $2)
ON CONFLICT (type) DO UPDATE SET problems = EXCLUDED.problems
`
	if _, err := r.db.ExecContext(ctx, query, set.Type, problems); err != nil {
		return fmt.Errorf("upsert comparison set: %w", err)
	}
	return nil
}

func scanProblem(row rowScanner) (*domain.Problem, error) {
	var (
		p   domain.Problem
		raw []byte
	)
	if err := row.Scan(&p.ID, &p.Concept, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &p.Questions); err != nil {
		return nil, fmt.Errorf("decode problem questions: %w", err)
	}
	return &p, nil
}
