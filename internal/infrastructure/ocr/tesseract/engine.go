package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
)

// Engine runs the tesseract CLI over an image fed on stdin.
type Engine struct {
	binary   string
	lang     string
	executor *resilience.Executor
}

func New(binary, lang string, executor *resilience.Executor) *Engine {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	if strings.TrimSpace(lang) == "" {
		lang = "eng"
	}
	return &Engine{binary: binary, lang: lang, executor: executor}
}

func (e *Engine) Recognize(ctx context.Context, image []byte, _ string) (string, error) {
	if len(image) == 0 {
		return "", domain.WrapError(domain.ErrFetch, "tesseract ocr", errors.New("empty image"))
	}
	run := func(ctx context.Context) (string, error) {
		return e.run(ctx, image)
	}

	var (
		text string
		err  error
	)
	if e.executor != nil {
		text, err = resilience.Do(ctx, e.executor, "ocr.tesseract", run, nil)
	} else {
		text, err = run(ctx)
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrFetch, "tesseract ocr", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) run(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, e.binary, "stdin", "stdout", "-l", e.lang)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("run %s: %w", e.binary, err)
		}
		return "", fmt.Errorf("run %s: %w: %s", e.binary, err, msg)
	}
	return stdout.String(), nil
}
