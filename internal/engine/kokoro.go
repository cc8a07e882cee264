package engine

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
)

const (
	kokoroBinary       = "kokoro-tts"
	kokoroDefaultModel = "kokoro-v0_19.onnx"
	kokoroDefaultLang  = "en-us"
)

// KokoroEngine drives the kokoro-tts CLI, the alternative backend. It is
// selected by model identifier and language code.
type KokoroEngine struct {
	log *logger.Logger
}

// NewKokoroEngine creates the kokoro-tts adapter.
func NewKokoroEngine(log *logger.Logger) *KokoroEngine {
	return &KokoroEngine{log: log}
}

// Name returns the engine identifier.
func (e *KokoroEngine) Name() core.EngineID {
	return core.EngineKokoro
}

// Preflight confirms the kokoro-tts executable is reachable on PATH.
func (e *KokoroEngine) Preflight() error {
	return lookPath(kokoroBinary)
}

// Synthesize runs one kokoro-tts invocation built deterministically from the
// request fields.
func (e *KokoroEngine) Synthesize(ctx context.Context, req core.GenerationRequest) error {
	model := req.Model
	if model == "" {
		model = kokoroDefaultModel
	}

	language := req.Language
	if language == "" {
		language = kokoroDefaultLang
	}

	args := []string{
		req.ScriptPath,
		req.OutputPath,
		"--model", model,
		"--lang", language,
	}

	e.log.Info("Invoking %s: model=%s lang=%s -> %s", kokoroBinary, model, language, req.OutputPath)

	// #nosec G204 -- arguments come from a validated GenerationRequest
	cmd := exec.CommandContext(ctx, kokoroBinary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", ErrSynthesisFailed, kokoroBinary, ctx.Err())
		}

		return fmt.Errorf("%w: %s: %w - output: %s", ErrSynthesisFailed, kokoroBinary, err, string(output))
	}

	return nil
}
