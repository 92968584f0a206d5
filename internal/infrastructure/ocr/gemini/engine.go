package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	geminillm "github.com/kirillkom/fin-extract/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
)

const transcribePrompt = "Transcribe all text in this image verbatim, including every number and table row. " +
	"Keep one table row per line with cells separated by \" | \". Output only the transcription."

// Engine transcribes images with a Gemini vision model.
type Engine struct {
	models   geminillm.ContentGenerator
	model    string
	executor *resilience.Executor
}

func New(models geminillm.ContentGenerator, model string, executor *resilience.Executor) *Engine {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Engine{models: models, model: model, executor: executor}
}

func (e *Engine) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", domain.WrapError(domain.ErrFetch, "gemini ocr", errors.New("empty image"))
	}
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0))}

	call := func(ctx context.Context) (string, error) {
		result, err := e.models.GenerateContent(ctx, e.model, contents, config)
		if err != nil {
			return "", err
		}
		return result.Text(), nil
	}

	var (
		text string
		err  error
	)
	if e.executor != nil {
		text, err = resilience.Do(ctx, e.executor, "ocr.gemini", call, geminillm.Classify)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrFetch, "gemini ocr", err)
	}
	return strings.TrimSpace(text), nil
}
