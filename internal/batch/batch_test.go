// Package batch_test tests parallel scheduling of pipeline runs.
package batch_test

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
	"github.com/zhuangzard/arxiv-scout/internal/batch"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/pipeline"
)

var errScriptedFailure = errors.New("scripted failure")

// fakeEngine produces a valid output for every script except those whose base
// name starts with "bad".
type fakeEngine struct{}

func (f *fakeEngine) Name() core.EngineID {
	return core.EngineEdge
}

func (f *fakeEngine) Preflight() error {
	return nil
}

func (f *fakeEngine) Synthesize(_ context.Context, req core.GenerationRequest) error {
	if strings.HasPrefix(filepath.Base(req.ScriptPath), "bad") {
		return errScriptedFailure
	}

	writeErr := os.WriteFile(req.OutputPath, make([]byte, 25*1024), 0o600)
	if writeErr != nil {
		return writeErr
	}

	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func writeScripts(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	content := []byte(strings.Repeat("a", 4000))

	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), content, 0o600)
		require.NoError(t, err)
	}

	return dir
}

func testTemplate() core.GenerationRequest {
	return core.GenerationRequest{
		ScriptPath: "",
		OutputPath: "",
		Engine:     core.EngineEdge,
		Voice:      "",
		Model:      "",
		Language:   "",
		Rate:       "",
		MaxRetries: 1,
		Timeout:    0,
	}
}

func TestCollectRequests(t *testing.T) {
	t.Parallel()

	dir := writeScripts(t, "alpha.txt", "beta.txt", "notes.md")
	outputDir := t.TempDir()

	requests, err := batch.CollectRequests(dir, outputDir, testTemplate())
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, filepath.Join(dir, "alpha.txt"), requests[0].ScriptPath)
	assert.Equal(t, filepath.Join(outputDir, "alpha.mp3"), requests[0].OutputPath)
	assert.Equal(t, filepath.Join(dir, "beta.txt"), requests[1].ScriptPath)
	assert.Equal(t, filepath.Join(outputDir, "beta.mp3"), requests[1].OutputPath)
}

func TestCollectRequests_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := batch.CollectRequests(filepath.Join(t.TempDir(), "absent"), t.TempDir(), testTemplate())
	require.Error(t, err)
}

func TestRun_IndependentResultsPerRequest(t *testing.T) {
	t.Parallel()

	dir := writeScripts(t, "alpha.txt", "bad-beta.txt", "gamma.txt")
	outputDir := t.TempDir()

	requests, err := batch.CollectRequests(dir, outputDir, testTemplate())
	require.NoError(t, err)
	require.Len(t, requests, 3)

	log := testLogger(t)
	pipe := pipeline.NewWithEngine(
		&fakeEngine{}, audio.NewValidator(nil, log), log, time.Millisecond)
	runner := batch.NewRunner(pipe, log, 2)

	results := runner.Run(context.Background(), requests)
	require.Len(t, results, 3)

	// One failing item never aborts its siblings.
	assert.Equal(t, core.StatusSucceeded, results[0].Outcome.Status)
	assert.Equal(t, core.StatusExhausted, results[1].Outcome.Status)
	assert.Equal(t, core.StatusSucceeded, results[2].Outcome.Status)

	assert.FileExists(t, filepath.Join(outputDir, "alpha.mp3"))
	assert.NoFileExists(t, filepath.Join(outputDir, "bad-beta.mp3"))
	assert.FileExists(t, filepath.Join(outputDir, "gamma.mp3"))
}
