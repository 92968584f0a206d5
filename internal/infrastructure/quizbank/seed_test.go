package quizbank

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

type quizRepoSpy struct {
	problems []domain.Problem
	sets     []domain.ComparisonSet
	err      error
}

func (s *quizRepoSpy) ListProblems(context.Context) ([]domain.Problem, error) { return s.problems, nil }
func (s *quizRepoSpy) GetProblem(context.Context, string) (*domain.Problem, error) {
	return nil, domain.ErrNotFound
}
func (s *quizRepoSpy) GetComparisonSet(context.Context, int) (*domain.ComparisonSet, error) {
	return nil, domain.ErrNotFound
}
func (s *quizRepoSpy) UpsertProblem(_ context.Context, p domain.Problem) error {
	if s.err != nil {
		return s.err
	}
	s.problems = append(s.problems, p)
	return nil
}
func (s *quizRepoSpy) UpsertComparisonSet(_ context.Context, set domain.ComparisonSet) error {
	s.sets = append(s.sets, set)
	return nil
}

func TestDefaultBankDecodes(t *testing.T) {
	bank, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if len(bank.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d", len(bank.Problems))
	}
	ratio := bank.Problems[0]
	if ratio.ID != "current-ratio" || ratio.Questions.Definition[0].CorrectOption != 1 {
		t.Fatalf("unexpected first problem: %+v", ratio)
	}
	if got := ratio.Questions.Calculation.Problems[0].Variables.CurrentAssets; len(got) != 3 || got[2] != 2000 {
		t.Fatalf("unexpected calculation variables: %v", got)
	}
	if len(bank.Comparisons) != 2 {
		t.Fatalf("expected 2 comparison sets, got %d", len(bank.Comparisons))
	}
	if n := len(bank.Comparisons[0].Problems.Definition); n != 2 {
		t.Fatalf("expected 2 definition questions, got %d", n)
	}
}

func TestParseKeepsFreeFormComparisonBodies(t *testing.T) {
	bank, err := Parse([]byte(`
comparisons:
  - type: 7
    problems:
      judgement:
        - prompt: pick one
          weights: [1, 2]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := string(bank.Comparisons[0].Problems.Judgement[0])
	if got != `{"prompt":"pick one","weights":[1,2]}` {
		t.Fatalf("unexpected raw body: %s", got)
	}
	if bank.Comparisons[0].Problems.Definition == nil {
		t.Fatalf("absent sections should decode to empty, not nil")
	}
}

func TestParseRejectsDuplicateProblemIDs(t *testing.T) {
	_, err := Parse([]byte(`
problems:
  - id: a
    concept: A
  - id: a
    concept: B
`))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("problemz: []\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSeedUpsertsEverything(t *testing.T) {
	bank, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	repo := &quizRepoSpy{}
	if err := Seed(context.Background(), repo, bank); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if len(repo.problems) != 2 || len(repo.sets) != 2 {
		t.Fatalf("unexpected upserts: problems=%d sets=%d", len(repo.problems), len(repo.sets))
	}
}

func TestSeedStopsOnRepositoryError(t *testing.T) {
	repo := &quizRepoSpy{err: errors.New("db down")}
	err := Seed(context.Background(), repo, &Bank{Problems: []domain.Problem{{ID: "x"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
