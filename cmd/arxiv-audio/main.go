// main package for the arxiv-audio command-line client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/audio"
	"github.com/zhuangzard/arxiv-scout/internal/batch"
	"github.com/zhuangzard/arxiv-scout/internal/config"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/format"
	"github.com/zhuangzard/arxiv-scout/internal/pipeline"
)

// Flag descriptions.
const (
	flagScriptDesc     = "Script file to synthesize (.txt)"
	flagOutputDesc     = "Output audio file path (.mp3)"
	flagScriptsDirDesc = "Directory of .txt scripts to synthesize as a batch"
	flagEngineDesc     = "Synthesis engine: edge or kokoro"
	flagVoiceDesc      = "Voice name (edge engine)"
	flagModelDesc      = "Model identifier (kokoro engine)"
	flagLangDesc       = "Language code (kokoro engine)"
	flagRateDesc       = "Speaking-rate modifier, e.g. +10% (edge engine)"
	flagRetriesDesc    = "Retry bound per run, 1-10 (0 uses the configured default)"
	flagTimeoutDesc    = "Per-attempt timeout in seconds (0 uses the configured default)"
	flagVerboseDesc    = "Enable verbose logging"
)

// Flag names.
const (
	flagScript     = "script"
	flagOutput     = "output"
	flagScriptsDir = "scripts-dir"
	flagEngine     = "engine"
	flagVoice      = "voice"
	flagModel      = "model"
	flagLang       = "lang"
	flagRate       = "rate"
	flagRetries    = "retries"
	flagTimeout    = "timeout"
	flagVerbose    = "verbose"
)

// Error and log messages.
const (
	errEitherScriptOrDir = "Either --script or --scripts-dir must be provided"
	errCannotSpecifyBoth = "Cannot specify both --script and --scripts-dir"
	errRunEnded          = "run ended %s: %s"
	errBatchItemsFailed  = "%d of %d batch items failed"
	msgGenerated         = "Generated: %s (%s"
	msgBatchFinished     = "Batch finished: %d succeeded, %d failed\n"
)

// File names and paths.
const (
	logFileNameDefault = "arxiv-audio.log"
	logFileNameVerbose = "arxiv-audio-verbose.log"
	defaultOutputFile  = "output.mp3"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	script     string
	output     string
	scriptsDir string
	engine     string
	voice      string
	model      string
	language   string
	rate       string
	retries    int
	timeout    int
	verbose    bool
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	cfg, finalLog, err := setup(flags.verbose)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	applyFlagOverrides(cfg, flags)

	pipe, err := pipeline.New(
		core.EngineID(cfg.Audio.Engine),
		audio.NewFFProbe(),
		finalLog,
		cfg.RetryDelay(),
	)
	if err != nil {
		finalLog.Error("Failed to build pipeline: %v", err)

		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return handleExecution(ctx, pipe, cfg, finalLog, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags
	flag.StringVar(&flags.script, flagScript, "", flagScriptDesc)
	flag.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flag.StringVar(&flags.scriptsDir, flagScriptsDir, "", flagScriptsDirDesc)
	flag.StringVar(&flags.engine, flagEngine, "", flagEngineDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.model, flagModel, "", flagModelDesc)
	flag.StringVar(&flags.language, flagLang, "", flagLangDesc)
	flag.StringVar(&flags.rate, flagRate, "", flagRateDesc)
	flag.IntVar(&flags.retries, flagRetries, 0, flagRetriesDesc)
	flag.IntVar(&flags.timeout, flagTimeout, 0, flagTimeoutDesc)
	flag.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flag.Parse()

	return flags
}

// setup boots a temporary logger, loads configuration through it, and then
// opens the final logger in the configured logs directory.
func setup(verbose bool) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "arxiv-audio-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	finalLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return cfg, finalLog, nil
}

// applyFlagOverrides folds non-empty flag values over the configured defaults.
func applyFlagOverrides(cfg *config.Config, flags appFlags) {
	if flags.engine != "" {
		cfg.Audio.Engine = flags.engine
	}

	if flags.voice != "" {
		cfg.Audio.Voice = flags.voice
	}

	if flags.model != "" {
		cfg.Audio.Model = flags.model
	}

	if flags.language != "" {
		cfg.Audio.Language = flags.language
	}

	if flags.rate != "" {
		cfg.Audio.Rate = flags.rate
	}

	if flags.retries != 0 {
		cfg.Audio.MaxRetries = flags.retries
	}

	if flags.timeout != 0 {
		cfg.Audio.TimeoutSeconds = flags.timeout
	}
}

// handleExecution validates flags and dispatches to single or batch mode.
func handleExecution(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	cfg *config.Config,
	finalLog *logger.Logger,
	flags appFlags,
) error {
	if flags.script == "" && flags.scriptsDir == "" {
		flag.Usage()
		finalLog.Error(errEitherScriptOrDir)

		return errors.New(errEitherScriptOrDir)
	}

	if flags.script != "" && flags.scriptsDir != "" {
		finalLog.Error(errCannotSpecifyBoth)

		return errors.New(errCannotSpecifyBoth)
	}

	if flags.script != "" {
		return processSingleScript(ctx, pipe, cfg, flags.script, flags.output)
	}

	return processScriptsDir(ctx, pipe, cfg, finalLog, flags.scriptsDir, flags.output)
}

// processSingleScript runs one pipeline run and prints the accepted output.
func processSingleScript(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	cfg *config.Config,
	scriptPath, outputFlag string,
) error {
	outputPath := outputFlag
	if outputPath == "" {
		outputPath = defaultOutputFile
	}

	outcome, runErr := pipe.Run(ctx, cfg.Request(scriptPath, outputPath))
	if runErr != nil {
		return fmt.Errorf("failed to process script: %w", runErr)
	}

	if !outcome.Succeeded() {
		return fmt.Errorf(errRunEnded, outcome.Status, outcome.FailureReason)
	}

	printOutcome(outcome)

	return nil
}

// processScriptsDir runs every .txt script in the directory through the
// bounded worker pool and reports a per-item tally.
func processScriptsDir(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	cfg *config.Config,
	finalLog *logger.Logger,
	scriptsDir, outputFlag string,
) error {
	outputDir := outputFlag
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}

	mkdirErr := os.MkdirAll(outputDir, 0o750)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, mkdirErr)
	}

	requests, collectErr := batch.CollectRequests(scriptsDir, outputDir, cfg.Request("", ""))
	if collectErr != nil {
		return collectErr
	}

	runner := batch.NewRunner(pipe, finalLog, cfg.Audio.Workers)
	results := runner.Run(ctx, requests)

	failed := 0

	for _, result := range results {
		if result.Err != nil || !result.Outcome.Succeeded() {
			failed++

			continue
		}

		printOutcome(result.Outcome)
	}

	fmt.Printf(msgBatchFinished, len(results)-failed, failed)

	if failed > 0 {
		return fmt.Errorf(errBatchItemsFailed, failed, len(results))
	}

	return nil
}

func printOutcome(outcome *core.PipelineOutcome) {
	fmt.Printf(msgGenerated, outcome.OutputPath, format.FileSize(outcome.FileSize))

	if outcome.HasDuration {
		fmt.Printf(", %s", format.Duration(outcome.AudioDuration.Seconds()))
	}

	fmt.Printf(", %d attempt(s) in %s)\n",
		len(outcome.Attempts), format.Duration(outcome.TotalElapsed.Seconds()))

	for _, warning := range outcome.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
}
