// main package for the audio-worker service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/zhuangzard/arxiv-scout/internal/audio"
	"github.com/zhuangzard/arxiv-scout/internal/config"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/objectstore"
	"github.com/zhuangzard/arxiv-scout/internal/pipeline"
	"github.com/zhuangzard/arxiv-scout/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audio-worker.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve wires NATS, the object stores, and the pipeline into a worker and
// blocks until the process is signalled.
func serve(cfg *config.Config, finalLog *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	scripts, err := objectstore.New(jetstreamContext, cfg.NATS.ScriptObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(
		core.EngineID(cfg.Audio.Engine),
		audio.NewFFProbe(),
		finalLog,
		cfg.RetryDelay(),
	)
	if err != nil {
		return err
	}

	workDir := filepath.Join(os.TempDir(), "audio-worker")

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		scripts,
		audioStore,
		pipe,
		workDir,
		finalLog,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalLog.System("Audio worker initialized. Listening for jobs on subject: %s",
		cfg.NATS.SynthesisSubject)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
