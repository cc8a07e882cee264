package pipeline

import (
	"context"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/zhuangzard/arxiv-scout/internal/audio"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/engine"
	"github.com/zhuangzard/arxiv-scout/internal/script"
)

// Pipeline wires the input validator, engine adapter, output validator, and
// retry controller into one run. The engine is constructed up front, so
// unknown engine identifiers fail before any external invocation.
type Pipeline struct {
	engine     core.Engine
	validator  *audio.Validator
	log        *logger.Logger
	retryDelay time.Duration
}

// New builds a pipeline for the given engine identifier. The decoding probe
// may be unavailable; validation degrades accordingly. A non-positive retry
// delay falls back to the default pause.
func New(
	id core.EngineID,
	probe core.Probe,
	log *logger.Logger,
	retryDelay time.Duration,
) (*Pipeline, error) {
	eng, err := engine.New(id, log)
	if err != nil {
		return nil, err
	}

	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Pipeline{
		engine:     eng,
		validator:  audio.NewValidator(probe, log),
		log:        log,
		retryDelay: retryDelay,
	}, nil
}

// NewWithEngine builds a pipeline around an already-constructed engine.
// Primarily for tests injecting fake backends.
func NewWithEngine(
	eng core.Engine,
	validator *audio.Validator,
	log *logger.Logger,
	retryDelay time.Duration,
) *Pipeline {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Pipeline{
		engine:     eng,
		validator:  validator,
		log:        log,
		retryDelay: retryDelay,
	}
}

// Run executes one pipeline run to a terminal state. Configuration and
// precondition failures return an error with zero attempts consumed; once the
// retry controller starts, the outcome carries the terminal state instead.
func (p *Pipeline) Run(ctx context.Context, req core.GenerationRequest) (*core.PipelineOutcome, error) {
	started := time.Now()

	outcome := &core.PipelineOutcome{
		RunID:         uuid.NewString(),
		Status:        core.StatusExhausted,
		OutputPath:    "",
		Attempts:      nil,
		Warnings:      nil,
		TotalElapsed:  0,
		FailureReason: "",
	}

	validateErr := req.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	report, scriptErr := script.Validate(req.ScriptPath)
	if scriptErr != nil {
		return nil, scriptErr
	}

	outcome.Warnings = append(outcome.Warnings, report.Warnings...)

	p.log.Info("Run %s: script %s (%d chars, est. %.1f min) -> %s via %s",
		outcome.RunID, req.ScriptPath, report.CharCount,
		report.EstimatedMinutes, req.OutputPath, p.engine.Name())

	// Engine availability is checked once per run, never per attempt.
	preflightErr := p.engine.Preflight()
	if preflightErr != nil {
		return nil, preflightErr
	}

	ctrl := newController(p.engine, p.validator, p.log, p.retryDelay)
	ctrl.run(ctx, req, outcome)

	outcome.TotalElapsed = time.Since(started)

	p.report(outcome)

	return outcome, nil
}

func (p *Pipeline) report(outcome *core.PipelineOutcome) {
	switch outcome.Status {
	case core.StatusSucceeded:
		p.log.Info("Run %s succeeded after %d attempt(s) in %s: %s",
			outcome.RunID, len(outcome.Attempts), outcome.TotalElapsed, outcome.OutputPath)
	case core.StatusCancelled:
		p.log.Warn("Run %s cancelled after %d attempt(s): %s",
			outcome.RunID, len(outcome.Attempts), outcome.FailureReason)
	case core.StatusExhausted:
		p.log.Error("Run %s exhausted after %d attempt(s): %s",
			outcome.RunID, len(outcome.Attempts), outcome.FailureReason)
	default:
		p.log.Error("Run %s ended in unexpected state %s", outcome.RunID, outcome.Status)
	}

	for _, warning := range outcome.Warnings {
		p.log.Warn("Run %s: %s", outcome.RunID, warning)
	}
}

// Engine exposes the constructed engine, used by callers that preflight
// before scheduling batches.
func (p *Pipeline) Engine() core.Engine {
	return p.engine
}
