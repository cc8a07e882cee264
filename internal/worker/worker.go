// Package worker provides a NATS worker that processes synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/events"
	"github.com/zhuangzard/arxiv-scout/internal/objectstore"
)

const (
	handleMessageTimeout = 15 * time.Minute
	filePermissions      = 0o600
)

var (
	// ErrScriptKeyEmpty indicates a job without a script object key.
	ErrScriptKeyEmpty = errors.New("script key cannot be empty")
	// ErrEngineUnsupported indicates a job naming an engine outside the closed set.
	ErrEngineUnsupported = errors.New("unsupported engine")
)

// Runner is the subset of the pipeline the worker drives. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req core.GenerationRequest) (*core.PipelineOutcome, error)
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
// One job's failure is reported on the reply subject and never stops the
// worker.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	scripts        objectstore.Store
	audio          objectstore.Store
	runner         Runner
	workDir        string
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. workDir holds the
// per-job temp files; it is created if missing.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	scripts objectstore.Store,
	audio objectstore.Store,
	runner Runner,
	workDir string,
	log *logger.Logger,
) (*NatsWorker, error) {
	mkdirErr := os.MkdirAll(workDir, 0o750)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", workDir, mkdirErr)
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		scripts:        scripts,
		audio:          audio,
		runner:         runner,
		workDir:        workDir,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, parseErr := w.parseAndValidateEvent(msg)
	if parseErr != nil {
		w.log.Error("Failed to parse and validate event: %v", parseErr)

		return
	}

	result, jobErr := w.processJob(ctx, event)
	if jobErr != nil {
		w.log.Error("Failed to process job for workflow %s: %v", event.Header.WorkflowID, jobErr)
		w.replyFailure(msg, event, result, jobErr)

		return
	}

	w.replySuccess(msg, event, result)
}

// jobResult pairs a pipeline outcome with the uploaded artifact's key and size.
type jobResult struct {
	outcome   *core.PipelineOutcome
	audioKey  string
	sizeBytes int64
}

// processJob downloads the script, runs the pipeline against temp paths, and
// uploads the accepted audio. Temp files are removed whatever the outcome.
func (w *NatsWorker) processJob(
	ctx context.Context,
	event *events.SynthesisRequestedEvent,
) (*jobResult, error) {
	scriptData, downloadErr := w.scripts.Download(ctx, event.ScriptKey)
	if downloadErr != nil {
		return nil, fmt.Errorf("failed to download script '%s': %w", event.ScriptKey, downloadErr)
	}

	jobID := uuid.NewString()
	scriptPath := filepath.Join(w.workDir, jobID+".txt")
	outputPath := filepath.Join(w.workDir, jobID+".mp3")

	writeErr := os.WriteFile(scriptPath, scriptData, filePermissions)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write script temp file: %w", writeErr)
	}

	defer w.removeQuietly(scriptPath)
	defer w.removeQuietly(outputPath)

	outcome, runErr := w.runner.Run(ctx, w.buildRequest(event, scriptPath, outputPath))
	if runErr != nil {
		return nil, fmt.Errorf("pipeline rejected job: %w", runErr)
	}

	result := &jobResult{outcome: outcome, audioKey: "", sizeBytes: 0}

	if !outcome.Succeeded() {
		return result, fmt.Errorf("pipeline ended %s: %s", outcome.Status, outcome.FailureReason)
	}

	audioData, readErr := os.ReadFile(outcome.OutputPath)
	if readErr != nil {
		return result, fmt.Errorf("failed to read generated audio: %w", readErr)
	}

	result.audioKey = jobID + ".mp3"
	result.sizeBytes = int64(len(audioData))

	uploadErr := w.audio.Upload(ctx, result.audioKey, audioData)
	if uploadErr != nil {
		return result, fmt.Errorf("failed to upload audio '%s': %w", result.audioKey, uploadErr)
	}

	return result, nil
}

func (w *NatsWorker) buildRequest(
	event *events.SynthesisRequestedEvent,
	scriptPath, outputPath string,
) core.GenerationRequest {
	return core.GenerationRequest{
		ScriptPath: scriptPath,
		OutputPath: outputPath,
		Engine:     core.EngineID(event.Engine),
		Voice:      event.Voice,
		Model:      event.Model,
		Language:   event.Language,
		Rate:       event.Rate,
		MaxRetries: event.MaxRetries,
		Timeout:    time.Duration(event.TimeoutSeconds) * time.Second,
	}
}

func (w *NatsWorker) replySuccess(
	msg *nats.Msg,
	event *events.SynthesisRequestedEvent,
	result *jobResult,
) {
	reply := &events.AudioGeneratedEvent{
		Header:          event.Header,
		AudioKey:        result.audioKey,
		Attempts:        len(result.outcome.Attempts),
		DurationSeconds: result.outcome.AudioDuration.Seconds(),
		SizeBytes:       result.sizeBytes,
		Warnings:        result.outcome.Warnings,
	}

	publishErr := w.publishReply(msg, reply)
	if publishErr != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, publishErr)
	}
}

func (w *NatsWorker) replyFailure(
	msg *nats.Msg,
	event *events.SynthesisRequestedEvent,
	result *jobResult,
	jobErr error,
) {
	reply := &events.SynthesisFailedEvent{
		Header:   event.Header,
		Status:   core.StatusExhausted.String(),
		Attempts: 0,
		Reason:   jobErr.Error(),
	}

	if result != nil && result.outcome != nil {
		reply.Status = result.outcome.Status.String()
		reply.Attempts = len(result.outcome.Attempts)
	}

	publishErr := w.publishReply(msg, reply)
	if publishErr != nil {
		w.log.Error("Failed to publish failure reply for workflow %s: %v", event.Header.WorkflowID, publishErr)
	}
}

func (w *NatsWorker) publishReply(msg *nats.Msg, reply any) error {
	replyData, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal reply event: %w", marshalErr)
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		return fmt.Errorf("failed to publish reply event: %w", respondErr)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.SynthesisRequestedEvent, error) {
	var event events.SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	validationErr := w.validateEvent(&event)
	if validationErr != nil {
		return nil, validationErr
	}

	return &event, nil
}

// validateEvent rejects malformed jobs before any download or invocation.
func (w *NatsWorker) validateEvent(event *events.SynthesisRequestedEvent) error {
	if event.ScriptKey == "" {
		return ErrScriptKeyEmpty
	}

	engineID := core.EngineID(event.Engine)
	if engineID != core.EngineEdge && engineID != core.EngineKokoro {
		return fmt.Errorf("%w: '%s'", ErrEngineUnsupported, event.Engine)
	}

	if event.MaxRetries < core.MinRetries || event.MaxRetries > core.MaxRetries {
		return fmt.Errorf("%w: got %d", core.ErrInvalidRetryCount, event.MaxRetries)
	}

	return nil
}

func (w *NatsWorker) removeQuietly(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		w.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
