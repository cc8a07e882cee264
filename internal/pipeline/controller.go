// Package pipeline orchestrates script validation, synthesis attempts, and
// output validation into a single run with a terminal outcome.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/audio"
	"github.com/zhuangzard/arxiv-scout/internal/core"
)

// DefaultRetryDelay is the fixed pause between attempts. Synthesis failures
// here are non-systemic, so a short fixed pause is sufficient; there is no
// exponential backoff.
const DefaultRetryDelay = 5 * time.Second

// State identifies a retry controller state.
type State int

const (
	// StateIdle is the initial state, entered once input validation passes.
	StateIdle State = iota
	// StateAttempting invokes the engine adapter once.
	StateAttempting
	// StateValidating inspects the produced file.
	StateValidating
	// StateRetrying waits the fixed delay before the next attempt.
	StateRetrying
	// StateAccepted is terminal: an output was accepted.
	StateAccepted
	// StateExhausted is terminal: the retry bound is spent.
	StateExhausted
	// StateCancelled is terminal: the run was cancelled externally.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateValidating:
		return "validating"
	case StateRetrying:
		return "retrying"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// controller runs the attempt loop for one pipeline run. Attempts are
// strictly sequential: each invocation runs to completion before validation,
// and validation completes before the next attempt begins.
type controller struct {
	engine     core.Engine
	validator  *audio.Validator
	log        *logger.Logger
	retryDelay time.Duration
	state      State
}

func newController(
	eng core.Engine,
	validator *audio.Validator,
	log *logger.Logger,
	retryDelay time.Duration,
) *controller {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &controller{
		engine:     eng,
		validator:  validator,
		log:        log,
		retryDelay: retryDelay,
		state:      StateIdle,
	}
}

// run drives the state machine to a terminal state, folding every attempt
// into the outcome. The target path holds a file at return time if and only
// if the outcome is Succeeded.
func (c *controller) run(ctx context.Context, req core.GenerationRequest, outcome *core.PipelineOutcome) {
	maxAttempts := req.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.state = StateAttempting

		result, verdict := c.attempt(ctx, req, attempt)
		outcome.Attempts = append(outcome.Attempts, result)

		if result.Succeeded {
			outcome.Warnings = append(outcome.Warnings, verdict.Warnings...)
			c.state = StateAccepted
			outcome.Status = core.StatusSucceeded
			outcome.OutputPath = req.OutputPath
			outcome.FileSize = verdict.FileSize
			outcome.AudioDuration = verdict.Duration
			outcome.HasDuration = verdict.HasDuration

			return
		}

		if ctx.Err() != nil {
			c.state = StateCancelled
			outcome.Status = core.StatusCancelled
			outcome.FailureReason = result.Diagnostic

			return
		}

		if attempt == maxAttempts {
			c.state = StateExhausted
			outcome.Status = core.StatusExhausted
			outcome.FailureReason = result.Diagnostic

			return
		}

		c.state = StateRetrying
		c.log.Warn("Attempt %d/%d failed: %s; retrying in %s",
			attempt, maxAttempts, result.Diagnostic, c.retryDelay)

		if !c.waitForRetry(ctx) {
			c.state = StateCancelled
			outcome.Status = core.StatusCancelled
			outcome.FailureReason = result.Diagnostic

			return
		}
	}
}

// attempt performs one invoke-then-validate cycle. A rejected output is
// deleted before control returns, so no partial file survives between
// attempts.
func (c *controller) attempt(
	ctx context.Context,
	req core.GenerationRequest,
	index int,
) (core.AttemptResult, core.ValidationVerdict) {
	result := core.AttemptResult{
		Index:      index,
		StartedAt:  time.Now(),
		FinishedAt: time.Time{},
		Elapsed:    0,
		Succeeded:  false,
		Diagnostic: "",
	}

	verdict := c.invokeAndValidate(ctx, req, &result)

	result.FinishedAt = time.Now()
	result.Elapsed = result.FinishedAt.Sub(result.StartedAt)

	return result, verdict
}

func (c *controller) invokeAndValidate(
	ctx context.Context,
	req core.GenerationRequest,
	result *core.AttemptResult,
) core.ValidationVerdict {
	attemptCtx := ctx

	var cancel context.CancelFunc

	if req.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	synthErr := c.engine.Synthesize(attemptCtx, req)
	if synthErr != nil {
		result.Diagnostic = synthErr.Error()
		c.discard(req.OutputPath)

		return core.ValidationVerdict{}
	}

	c.state = StateValidating

	verdict := c.validator.Validate(ctx, req.OutputPath)
	if !verdict.Accepted {
		result.Diagnostic = verdict.Rejection.Error()
		c.discard(req.OutputPath)

		return verdict
	}

	result.Succeeded = true

	return verdict
}

// waitForRetry blocks for the fixed delay, returning false if the run is
// cancelled during the wait.
func (c *controller) waitForRetry(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// discard removes a rejected or partial output so the next attempt starts
// from a clean target path.
func (c *controller) discard(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		c.log.Warn("Failed to remove rejected output %s: %v", path, removeErr)
	}
}
