package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

const (
	defaultSampleCount = 5
	maxSampleCount     = 50
)

type QuizUseCase struct {
	repo    ports.QuizRepository
	shuffle func(n int, swap func(i, j int))
}

func NewQuizUseCase(repo ports.QuizRepository) *QuizUseCase {
	return &QuizUseCase{repo: repo, shuffle: rand.Shuffle}
}

func (uc *QuizUseCase) ListProblems(ctx context.Context) ([]domain.Problem, error) {
	problems, err := uc.repo.ListProblems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	return problems, nil
}

func (uc *QuizUseCase) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get problem", errors.New("problem id is required"))
	}
	problem, err := uc.repo.GetProblem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return problem, nil
}

// Sample draws up to count distinct questions from one section of a comparison set.
func (uc *QuizUseCase) Sample(ctx context.Context, quizType int, section domain.QuizSection, count int) (*domain.QuizSample, error) {
	if _, ok := domain.ParseQuizSection(string(section)); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "sample quiz", fmt.Errorf("unknown section %q", section))
	}
	if count <= 0 {
		count = defaultSampleCount
	}
	if count > maxSampleCount {
		count = maxSampleCount
	}

	set, err := uc.repo.GetComparisonSet(ctx, quizType)
	if err != nil {
		return nil, fmt.Errorf("get comparison set: %w", err)
	}

	pool := append([]json.RawMessage(nil), set.Problems.Section(section)...)
	uc.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if count < len(pool) {
		pool = pool[:count]
	}

	return &domain.QuizSample{
		Type:      quizType,
		Section:   section,
		Questions: pool,
	}, nil
}
