// Package engine provides the adapters for the supported TTS backends.
//
// Each backend is an external executable invoked exactly once per Synthesize
// call. Adapters are stateless; retrying and output validation belong to the
// pipeline, not to the adapter.
package engine

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
)

var (
	// ErrUnknownEngine indicates an engine identifier outside the closed set of
	// supported backends. It is returned at construction time, before any
	// attempt is made.
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrEngineUnavailable indicates that a backend executable is not reachable
	// on PATH. Preflight failures consume no retry attempts.
	ErrEngineUnavailable = errors.New("engine executable not available")
	// ErrSynthesisFailed indicates that the backend process exited non-zero or
	// failed at runtime. It carries the captured diagnostic text and is
	// retryable.
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// New constructs the adapter for the requested backend. Unknown identifiers
// fail fast here and never reach the retry controller.
func New(id core.EngineID, log *logger.Logger) (core.Engine, error) {
	switch id {
	case core.EngineEdge:
		return NewEdgeEngine(log), nil
	case core.EngineKokoro:
		return NewKokoroEngine(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, id)
	}
}

// lookPath confirms that the named backend executable is reachable.
func lookPath(binary string) error {
	_, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEngineUnavailable, binary, err)
	}

	return nil
}
