package claude

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
)

const systemPrompt = "You convert financial statements into JSON. Respond with strict JSON only."

// Messager is the part of the Anthropic SDK the client uses.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type Client struct {
	messages    Messager
	model       string
	maxTokens   int64
	temperature float64
	executor    *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewWithMessager(&c.Messages, cfg, executor), nil
}

func NewWithMessager(messages Messager, cfg Config, executor *resilience.Executor) *Client {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Client{
		messages:    messages,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		executor:    executor,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "anthropic messages", errors.New("empty prompt"))
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(c.temperature),
	}

	call := func(ctx context.Context) (string, error) {
		resp, err := c.messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, b := range resp.Content {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String(), nil
	}

	var (
		text string
		err  error
	)
	if c.executor != nil {
		text, err = resilience.Do(ctx, c.executor, "anthropic.messages", call, classify)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		return "", wrapUpstream(err)
	}
	return text, nil
}

func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

func wrapUpstream(err error) error {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if !domain.IsKind(err, domain.ErrTemporary) && classify(err).Retryable {
		err = domain.WrapError(domain.ErrTemporary, "anthropic messages", err)
	}
	return domain.WrapError(domain.ErrUpstream, "anthropic messages", err)
}
