package engine

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
)

const (
	edgeBinary       = "edge-tts"
	edgeDefaultVoice = "zh-CN-YunxiNeural"
	edgeDefaultRate  = "+0%"
)

// EdgeEngine drives the edge-tts CLI, the free default backend. It is selected
// by voice name and speaking-rate modifier (e.g. "+10%").
type EdgeEngine struct {
	log *logger.Logger
}

// NewEdgeEngine creates the edge-tts adapter.
func NewEdgeEngine(log *logger.Logger) *EdgeEngine {
	return &EdgeEngine{log: log}
}

// Name returns the engine identifier.
func (e *EdgeEngine) Name() core.EngineID {
	return core.EngineEdge
}

// Preflight confirms the edge-tts executable is reachable on PATH.
func (e *EdgeEngine) Preflight() error {
	return lookPath(edgeBinary)
}

// Synthesize runs one edge-tts invocation built deterministically from the
// request fields. The context bounds the invocation; cancellation kills the
// subprocess rather than waiting for it to exit.
func (e *EdgeEngine) Synthesize(ctx context.Context, req core.GenerationRequest) error {
	voice := req.Voice
	if voice == "" {
		voice = edgeDefaultVoice
	}

	rate := req.Rate
	if rate == "" {
		rate = edgeDefaultRate
	}

	args := []string{
		"--file", req.ScriptPath,
		"--write-media", req.OutputPath,
		"--voice", voice,
		"--rate", rate,
	}

	e.log.Info("Invoking %s: voice=%s rate=%s -> %s", edgeBinary, voice, rate, req.OutputPath)

	// #nosec G204 -- arguments come from a validated GenerationRequest
	cmd := exec.CommandContext(ctx, edgeBinary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", ErrSynthesisFailed, edgeBinary, ctx.Err())
		}

		return fmt.Errorf("%w: %s: %w - output: %s", ErrSynthesisFailed, edgeBinary, err, string(output))
	}

	return nil
}
