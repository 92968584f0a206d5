package quizbank

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

//go:embed default.yaml
var defaultBank []byte

// Bank is the decoded content of a seed file.
type Bank struct {
	Problems    []domain.Problem
	Comparisons []domain.ComparisonSet
}

type seedFile struct {
	Problems    []domain.Problem `yaml:"problems"`
	Comparisons []seedComparison `yaml:"comparisons"`
}

// Comparison question bodies are free-form, so they are decoded generically
// and re-encoded as JSON.
type seedComparison struct {
	Type     int `yaml:"type"`
	Problems struct {
		Definition  []any `yaml:"definition"`
		Judgement   []any `yaml:"judgement"`
		Calculation []any `yaml:"calculation"`
	} `yaml:"problems"`
}

func Default() (*Bank, error) {
	return Parse(defaultBank)
}

// Load reads a seed file from disk. An empty path selects the embedded bank.
func Load(path string) (*Bank, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz seed %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Bank, error) {
	var file seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode quiz seed", err)
	}

	bank := &Bank{Problems: file.Problems}
	seenProblems := make(map[string]struct{}, len(file.Problems))
	for i, p := range file.Problems {
		if p.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode quiz seed", fmt.Errorf("problem %d has no id", i))
		}
		if _, dup := seenProblems[p.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode quiz seed", fmt.Errorf("duplicate problem id %q", p.ID))
		}
		seenProblems[p.ID] = struct{}{}
	}

	seenTypes := make(map[int]struct{}, len(file.Comparisons))
	for _, c := range file.Comparisons {
		if _, dup := seenTypes[c.Type]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode quiz seed", fmt.Errorf("duplicate comparison type %d", c.Type))
		}
		seenTypes[c.Type] = struct{}{}

		set := domain.ComparisonSet{Type: c.Type}
		var err error
		if set.Problems.Definition, err = toRaw(c.Problems.Definition); err != nil {
			return nil, fmt.Errorf("comparison %d definition: %w", c.Type, err)
		}
		if set.Problems.Judgement, err = toRaw(c.Problems.Judgement); err != nil {
			return nil, fmt.Errorf("comparison %d judgement: %w", c.Type, err)
		}
		if set.Problems.Calculation, err = toRaw(c.Problems.Calculation); err != nil {
			return nil, fmt.Errorf("comparison %d calculation: %w", c.Type, err)
		}
		bank.Comparisons = append(bank.Comparisons, set)
	}
	return bank, nil
}

// Seed upserts every problem and comparison set of the bank.
func Seed(ctx context.Context, repo ports.QuizRepository, bank *Bank) error {
	for _, p := range bank.Problems {
		if err := repo.UpsertProblem(ctx, p); err != nil {
			return fmt.Errorf("seed problem %s: %w", p.ID, err)
		}
	}
	for _, c := range bank.Comparisons {
		if err := repo.UpsertComparisonSet(ctx, c); err != nil {
			return fmt.Errorf("seed comparison set %d: %w", c.Type, err)
		}
	}
	slog.Info("quiz_bank_seeded", "problems", len(bank.Problems), "comparison_sets", len(bank.Comparisons))
	return nil
}

func toRaw(items []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		encoded, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}
