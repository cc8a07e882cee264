// Package core defines the shared types and interfaces for the audio
// generation pipeline.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Retry bounds for a single pipeline run.
const (
	MinRetries     = 1
	MaxRetries     = 10
	DefaultRetries = 3
)

var (
	// ErrInvalidRetryCount indicates that the requested retry bound is outside
	// the accepted 1-10 range.
	ErrInvalidRetryCount = errors.New("retry count must be between 1 and 10")
	// ErrScriptPathEmpty indicates that no input script path was provided.
	ErrScriptPathEmpty = errors.New("script path cannot be empty")
	// ErrOutputPathEmpty indicates that no target output path was provided.
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	// ErrEngineEmpty indicates that no engine identifier was provided.
	ErrEngineEmpty = errors.New("engine identifier cannot be empty")
)

// EngineID identifies one of the supported TTS backends. The set of valid
// identifiers is closed at build time.
type EngineID string

// Supported engine identifiers.
const (
	// EngineEdge is the free default backend, selected by voice name and
	// speaking-rate modifier.
	EngineEdge EngineID = "edge"
	// EngineKokoro is the alternative backend, selected by model identifier
	// and language code.
	EngineKokoro EngineID = "kokoro"
)

// GenerationRequest describes one pipeline run. It is immutable once
// constructed; callers build it from configuration and defaults and the
// pipeline never mutates it after validation passes.
type GenerationRequest struct {
	ScriptPath string
	OutputPath string
	Engine     EngineID
	Voice      string
	Model      string
	Language   string
	Rate       string
	MaxRetries int
	Timeout    time.Duration
}

// Validate checks the request fields that must be correct before any external
// invocation happens. Out-of-range retry counts never reach the state machine.
func (r GenerationRequest) Validate() error {
	if r.ScriptPath == "" {
		return ErrScriptPathEmpty
	}

	if r.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	if r.Engine == "" {
		return ErrEngineEmpty
	}

	if r.MaxRetries < MinRetries || r.MaxRetries > MaxRetries {
		return fmt.Errorf("%w: got %d", ErrInvalidRetryCount, r.MaxRetries)
	}

	return nil
}

// AttemptResult records one complete invoke-then-validate cycle.
type AttemptResult struct {
	Index      int
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
	Succeeded  bool
	Diagnostic string
}

// ValidationVerdict is the Output Validator's decision for one attempt's
// produced file. It is computed fresh per attempt and never mutated after
// creation.
type ValidationVerdict struct {
	Accepted    bool
	FileSize    int64
	Duration    time.Duration
	HasDuration bool
	Warnings    []string
	Rejection   error
}

// Status is the terminal state of a pipeline run.
type Status int

const (
	// StatusSucceeded means an attempt's output was accepted and survives at
	// the target path.
	StatusSucceeded Status = iota
	// StatusExhausted means every attempt failed and the retry bound is spent.
	StatusExhausted
	// StatusCancelled means the run was cancelled externally before reaching a
	// verdict.
	StatusCancelled
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusExhausted:
		return "exhausted"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PipelineOutcome is the one artifact a pipeline run returns to its caller.
// It owns the full attempt history for the run.
type PipelineOutcome struct {
	RunID         string
	Status        Status
	OutputPath    string
	FileSize      int64
	AudioDuration time.Duration
	HasDuration   bool
	Attempts      []AttemptResult
	Warnings      []string
	TotalElapsed  time.Duration
	FailureReason string
}

// Succeeded reports whether the run ended with an accepted output.
func (o *PipelineOutcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Engine is the uniform interface over the heterogeneous TTS backends. One
// implementation exists per supported backend; implementations are stateless
// and perform exactly one external invocation per Synthesize call. Retrying is
// entirely the caller's responsibility.
type Engine interface {
	// Name returns the engine identifier.
	Name() EngineID
	// Preflight confirms the backend executable is reachable. It runs once per
	// pipeline run, before any attempt is made.
	Preflight() error
	// Synthesize produces audio at the request's output path, or returns an
	// error carrying the backend's diagnostic text.
	Synthesize(ctx context.Context, req GenerationRequest) error
}

// ProbeReport holds the machine-readable metadata a decoding probe extracts
// from an audio file.
type ProbeReport struct {
	Duration   time.Duration
	FormatName string
}

// Probe is the optional media-inspection collaborator. Its absence degrades
// output validation rather than failing the pipeline.
type Probe interface {
	// Available reports whether the probe executable is reachable.
	Available() bool
	// Inspect opens the file and reports duration and container format.
	Inspect(ctx context.Context, path string) (ProbeReport, error)
}
