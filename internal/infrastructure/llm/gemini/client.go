package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
)

// ContentGenerator is satisfied by (*genai.Client).Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type Client struct {
	models      ContentGenerator
	model       string
	maxTokens   int32
	temperature float32
	executor    *resilience.Executor
}

// NewContentGenerator builds the SDK client shared by completion and OCR.
func NewContentGenerator(ctx context.Context, apiKey string) (ContentGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client.Models, nil
}

func New(models ContentGenerator, cfg Config, executor *resilience.Executor) *Client {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Client{
		models:      models,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: float32(cfg.Temperature),
		executor:    executor,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "gemini generate", errors.New("empty prompt"))
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		MaxOutputTokens:  c.maxTokens,
		ResponseMIMEType: "application/json",
	}

	call := func(ctx context.Context) (string, error) {
		result, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
		if err != nil {
			return "", err
		}
		return result.Text(), nil
	}

	var (
		text string
		err  error
	)
	if c.executor != nil {
		text, err = resilience.Do(ctx, c.executor, "gemini.generate", call, Classify)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		return "", WrapUpstream("gemini generate", err)
	}
	return text, nil
}

// Classify marks network and deadline failures as transient.
func Classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "UNAVAILABLE") {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func WrapUpstream(operation string, err error) error {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if !domain.IsKind(err, domain.ErrTemporary) && Classify(err).Retryable {
		err = domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrUpstream, operation, err)
}
