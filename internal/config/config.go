// Package config provides the configuration structure for arxiv-scout audio
// generation.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
	"github.com/zhuangzard/arxiv-scout/internal/engine"
)

// Defaults applied to unset audio settings.
const (
	defaultTimeoutSeconds    = 300
	defaultRetryDelaySeconds = 5
	defaultWorkers           = 4
)

// NATSConfig holds the configuration for job delivery and object storage.
type NATSConfig struct {
	URL                     string `toml:"url"`
	SynthesisSubject        string `toml:"synthesis_subject"`
	ScriptObjectStoreBucket string `toml:"script_object_store_bucket"`
	AudioObjectStoreBucket  string `toml:"audio_object_store_bucket"`
}

// AudioConfig holds the defaults for pipeline runs.
type AudioConfig struct {
	Engine            string `toml:"engine"`
	Voice             string `toml:"voice"`
	Model             string `toml:"model"`
	Language          string `toml:"language"`
	Rate              string `toml:"rate"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	Workers           int    `toml:"workers"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS  NATSConfig  `toml:"nats"`
	Audio AudioConfig `toml:"audio"`
	Paths PathsConfig `toml:"paths"`
}

// Load loads the configuration through the central configurator and applies
// defaults and validation. Configuration errors surface here, before any
// pipeline run starts.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	return &cfg, nil
}

// ApplyDefaults fills unset audio settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Audio.Engine == "" {
		c.Audio.Engine = string(core.EngineEdge)
	}

	if c.Audio.MaxRetries == 0 {
		c.Audio.MaxRetries = core.DefaultRetries
	}

	if c.Audio.RetryDelaySeconds == 0 {
		c.Audio.RetryDelaySeconds = defaultRetryDelaySeconds
	}

	if c.Audio.TimeoutSeconds == 0 {
		c.Audio.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Audio.Workers == 0 {
		c.Audio.Workers = defaultWorkers
	}
}

// Validate rejects unknown engine identifiers and out-of-range retry counts
// at configuration time.
func (c *Config) Validate() error {
	engineID := core.EngineID(c.Audio.Engine)
	if engineID != core.EngineEdge && engineID != core.EngineKokoro {
		return fmt.Errorf("%w: %q", engine.ErrUnknownEngine, c.Audio.Engine)
	}

	if c.Audio.MaxRetries < core.MinRetries || c.Audio.MaxRetries > core.MaxRetries {
		return fmt.Errorf("%w: got %d", core.ErrInvalidRetryCount, c.Audio.MaxRetries)
	}

	return nil
}

// Request builds a GenerationRequest from the configured defaults for the
// given script and output paths.
func (c *Config) Request(scriptPath, outputPath string) core.GenerationRequest {
	return core.GenerationRequest{
		ScriptPath: scriptPath,
		OutputPath: outputPath,
		Engine:     core.EngineID(c.Audio.Engine),
		Voice:      c.Audio.Voice,
		Model:      c.Audio.Model,
		Language:   c.Audio.Language,
		Rate:       c.Audio.Rate,
		MaxRetries: c.Audio.MaxRetries,
		Timeout:    time.Duration(c.Audio.TimeoutSeconds) * time.Second,
	}
}

// RetryDelay returns the configured pause between attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Audio.RetryDelaySeconds) * time.Second
}
