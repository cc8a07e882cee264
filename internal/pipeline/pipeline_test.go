// Package pipeline_test tests the retry controller and run orchestration.
package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhuangzard/arxiv-scout/internal/audio"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/pipeline"
	"github.com/zhuangzard/arxiv-scout/internal/script"
)

const testRetryDelay = time.Millisecond

var errBackendBroken = errors.New("backend broken")

// fakeEngine is a scripted backend: onSynthesize decides per invocation
// whether to produce a file or fail.
type fakeEngine struct {
	preflightErr error
	invocations  int
	onSynthesize func(ctx context.Context, call int, req core.GenerationRequest) error
}

func (f *fakeEngine) Name() core.EngineID {
	return core.EngineEdge
}

func (f *fakeEngine) Preflight() error {
	return f.preflightErr
}

func (f *fakeEngine) Synthesize(ctx context.Context, req core.GenerationRequest) error {
	f.invocations++

	return f.onSynthesize(ctx, f.invocations, req)
}

// fakeProbe is a scripted decoding probe.
type fakeProbe struct {
	available bool
	report    core.ProbeReport
	err       error
}

func (f *fakeProbe) Available() bool {
	return f.available
}

func (f *fakeProbe) Inspect(_ context.Context, _ string) (core.ProbeReport, error) {
	return f.report, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func writeScript(t *testing.T, chars int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script.txt")

	err := os.WriteFile(path, []byte(strings.Repeat("a", chars)), 0o600)
	require.NoError(t, err)

	return path
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()

	err := os.WriteFile(path, make([]byte, size), 0o600)
	require.NoError(t, err)
}

func healthyProbe(duration time.Duration) *fakeProbe {
	return &fakeProbe{
		available: true,
		report:    core.ProbeReport{Duration: duration, FormatName: "mp3"},
		err:       nil,
	}
}

func newTestPipeline(t *testing.T, eng *fakeEngine, probe core.Probe) *pipeline.Pipeline {
	t.Helper()

	log := testLogger(t)

	return pipeline.NewWithEngine(eng, audio.NewValidator(probe, log), log, testRetryDelay)
}

func baseRequest(t *testing.T, scriptChars, maxRetries int) core.GenerationRequest {
	t.Helper()

	return core.GenerationRequest{
		ScriptPath: writeScript(t, scriptChars),
		OutputPath: filepath.Join(t.TempDir(), "output.mp3"),
		Engine:     core.EngineEdge,
		Voice:      "",
		Model:      "",
		Language:   "",
		Rate:       "",
		MaxRetries: maxRetries,
		Timeout:    0,
	}
}

func TestRun_FirstAttemptAccepted(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, req core.GenerationRequest) error {
			writeFile(t, req.OutputPath, 25*1024)

			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 3)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusSucceeded, outcome.Status)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, 1, eng.invocations)
	assert.Equal(t, req.OutputPath, outcome.OutputPath)
	assert.Equal(t, int64(25*1024), outcome.FileSize)
	assert.True(t, outcome.HasDuration)
	assert.Equal(t, 90*time.Second, outcome.AudioDuration)
	assert.Empty(t, outcome.Warnings)
	assert.FileExists(t, req.OutputPath)
}

func TestRun_RejectedOutputsRetriedThenAccepted(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, call int, req core.GenerationRequest) error {
			if call > 1 {
				// Rejected outputs must be deleted before the next attempt.
				assert.NoFileExists(t, req.OutputPath)
			}

			if call < 3 {
				writeFile(t, req.OutputPath, 5*1024)

				return nil
			}

			writeFile(t, req.OutputPath, 2*1024*1024)

			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 3)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusSucceeded, outcome.Status)
	assert.Len(t, outcome.Attempts, 3)
	assert.False(t, outcome.Attempts[0].Succeeded)
	assert.False(t, outcome.Attempts[1].Succeeded)
	assert.True(t, outcome.Attempts[2].Succeeded)
	assert.Equal(t, int64(2*1024*1024), outcome.FileSize)
	assert.FileExists(t, req.OutputPath)
}

func TestRun_AllAttemptsFailExhaustsRetries(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, _ core.GenerationRequest) error {
			return errBackendBroken
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 3)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusExhausted, outcome.Status)
	assert.Len(t, outcome.Attempts, 4)
	assert.Equal(t, 4, eng.invocations)
	assert.Contains(t, outcome.FailureReason, "backend broken")
	assert.NoFileExists(t, req.OutputPath)
}

func TestRun_RejectedOutputsExhaustCleanly(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, req core.GenerationRequest) error {
			writeFile(t, req.OutputPath, 1024)

			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 2)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusExhausted, outcome.Status)
	assert.Len(t, outcome.Attempts, 3)
	assert.NoFileExists(t, req.OutputPath)
}

func TestRun_MissingScriptConsumesNoAttempts(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, _ core.GenerationRequest) error {
			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))

	req := baseRequest(t, 4000, 3)
	req.ScriptPath = filepath.Join(t.TempDir(), "absent.txt")

	_, err := pipe.Run(context.Background(), req)
	require.ErrorIs(t, err, script.ErrMissingInput)
	assert.Equal(t, 0, eng.invocations)
	assert.NoFileExists(t, req.OutputPath)
}

func TestRun_InvalidRetryCountConsumesNoAttempts(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, _ core.GenerationRequest) error {
			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))

	req := baseRequest(t, 4000, 11)

	_, err := pipe.Run(context.Background(), req)
	require.ErrorIs(t, err, core.ErrInvalidRetryCount)
	assert.Equal(t, 0, eng.invocations)
}

func TestRun_PreflightFailureConsumesNoAttempts(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: errBackendBroken,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, _ core.GenerationRequest) error {
			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 3)

	_, err := pipe.Run(context.Background(), req)
	require.ErrorIs(t, err, errBackendBroken)
	assert.Equal(t, 0, eng.invocations)
}

func TestNew_UnknownEngineFailsBeforeAnyRun(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New("unknown-engine", healthyProbe(0), testLogger(t), 0)
	require.Error(t, err)
}

func TestRun_ProbeUnavailableDegradesValidation(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, req core.GenerationRequest) error {
			writeFile(t, req.OutputPath, 25*1024)

			return nil
		},
	}
	probe := &fakeProbe{
		available: false,
		report:    core.ProbeReport{Duration: 0, FormatName: ""},
		err:       nil,
	}
	pipe := newTestPipeline(t, eng, probe)
	req := baseRequest(t, 4000, 3)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusSucceeded, outcome.Status)
	assert.False(t, outcome.HasDuration)
	assert.Empty(t, outcome.Warnings)
}

func TestRun_CancelledBetweenAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, _ core.GenerationRequest) error {
			cancel()

			return errBackendBroken
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 4000, 3)

	outcome, err := pipe.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCancelled, outcome.Status)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, 1, eng.invocations)
	assert.NoFileExists(t, req.OutputPath)
}

func TestRun_ScriptWarningsReachTheOutcome(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(_ context.Context, _ int, req core.GenerationRequest) error {
			writeFile(t, req.OutputPath, 25*1024)

			return nil
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))
	req := baseRequest(t, 100, 3)

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.StatusSucceeded, outcome.Status)
	require.NotEmpty(t, outcome.Warnings)
	assert.Contains(t, outcome.Warnings[0], "short")
}

func TestRun_AttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		preflightErr: nil,
		invocations:  0,
		onSynthesize: func(ctx context.Context, _ int, _ core.GenerationRequest) error {
			// Simulate a hung backend: block until the per-attempt
			// deadline kills the invocation.
			<-ctx.Done()

			return ctx.Err()
		},
	}
	pipe := newTestPipeline(t, eng, healthyProbe(90*time.Second))

	req := baseRequest(t, 4000, 1)
	req.Timeout = 50 * time.Millisecond

	outcome, err := pipe.Run(context.Background(), req)
	require.NoError(t, err)

	// A per-attempt timeout fails that attempt only; the run itself keeps
	// its retry budget.
	assert.Equal(t, core.StatusExhausted, outcome.Status)
	assert.Len(t, outcome.Attempts, 2)
}
