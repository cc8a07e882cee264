// Package batch runs independent pipeline runs in parallel over a set of
// scripts.
//
// Runs are embarrassingly parallel: each owns its own input/output file pair
// and shares no mutable state with any other run, so the only coordination is
// a bounded worker pool. One run's exhaustion never aborts sibling runs.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/pipeline"
)

const defaultWorkers = 4

// Result pairs one request with its outcome or its precondition error.
type Result struct {
	Request core.GenerationRequest
	Outcome *core.PipelineOutcome
	Err     error
}

// Runner schedules pipeline runs across a bounded worker pool.
type Runner struct {
	pipeline *pipeline.Pipeline
	log      *logger.Logger
	workers  int
}

// NewRunner creates a batch runner. A non-positive worker count falls back to
// the default pool size.
func NewRunner(p *pipeline.Pipeline, log *logger.Logger, workers int) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Runner{
		pipeline: p,
		log:      log,
		workers:  workers,
	}
}

// Run executes every request and returns one result per request, in request
// order. Failed runs are logged and reported, never fatal to the batch.
func (r *Runner) Run(ctx context.Context, requests []core.GenerationRequest) []Result {
	results := make([]Result, len(requests))

	var waitGroup sync.WaitGroup

	pool := make(chan struct{}, r.workers)

	for index, request := range requests {
		waitGroup.Add(1)

		go func(slot int, req core.GenerationRequest) {
			defer waitGroup.Done()

			pool <- struct{}{}

			defer func() { <-pool }()

			outcome, runErr := r.pipeline.Run(ctx, req)
			results[slot] = Result{Request: req, Outcome: outcome, Err: runErr}

			if runErr != nil {
				r.log.Error("Batch item %d (%s) failed: %v", slot+1, req.ScriptPath, runErr)

				return
			}

			r.log.Info("Batch item %d (%s) finished: %s", slot+1, req.ScriptPath, outcome.Status)
		}(index, request)
	}

	waitGroup.Wait()
	close(pool)

	return results
}

// CollectRequests builds one request per .txt script in dir, writing each
// output next to the configured output directory with the script's base name.
func CollectRequests(
	dir, outputDir string,
	template core.GenerationRequest,
) ([]core.GenerationRequest, error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read scripts directory %s: %w", dir, readErr)
	}

	var requests []core.GenerationRequest

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), ".txt")

		request := template
		request.ScriptPath = filepath.Join(dir, entry.Name())
		request.OutputPath = filepath.Join(outputDir, base+".mp3")

		requests = append(requests, request)
	}

	return requests, nil
}
