package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/zhuangzard/arxiv-scout/internal/core"
)

// Default acceptance thresholds. Failed syntheses still sometimes produce
// tiny, technically valid files, so anything below the minimum size is
// rejected outright. Oversized and short-duration results are caller
// concerns, not correctness failures, and only warn.
const (
	DefaultMinBytes    = 20 * 1024
	DefaultMaxBytes    = 100 * 1024 * 1024
	DefaultMinDuration = 10 * time.Second
)

var (
	// ErrOutputMissing indicates that no file exists at the target path after a
	// successful-looking invocation. Treated as an invocation bug rather than a
	// transient fault, but still retryable.
	ErrOutputMissing = errors.New("output file missing after synthesis")
	// ErrOutputTooSmall indicates that the produced file is below the minimum
	// size threshold.
	ErrOutputTooSmall = errors.New("output file below minimum size")
	// ErrOutputCorrupt indicates that the decoding probe could not decode the
	// produced file.
	ErrOutputCorrupt = errors.New("output file failed decode probe")
)

const (
	fmtWarnVeryLarge     = "output is very large: %d bytes (threshold %d)"
	fmtWarnShortDuration = "measured duration %.1fs is below the %.0fs sanity threshold"
)

// Validator inspects a produced audio file and returns an accept/reject
// verdict. When the decoding probe is unavailable, duration and corruption
// checks are skipped entirely and only size-based checks apply.
type Validator struct {
	probe       core.Probe
	log         *logger.Logger
	minBytes    int64
	maxBytes    int64
	minDuration time.Duration
}

// NewValidator creates an output validator with the default thresholds. The
// probe may be unavailable; the validator degrades gracefully.
func NewValidator(probe core.Probe, log *logger.Logger) *Validator {
	return &Validator{
		probe:       probe,
		log:         log,
		minBytes:    DefaultMinBytes,
		maxBytes:    DefaultMaxBytes,
		minDuration: DefaultMinDuration,
	}
}

// Validate computes a fresh verdict for the file at path. At most one
// rejection reason is recorded; warnings never affect control flow.
func (v *Validator) Validate(ctx context.Context, path string) core.ValidationVerdict {
	verdict := core.ValidationVerdict{
		Accepted:    false,
		FileSize:    0,
		Duration:    0,
		HasDuration: false,
		Warnings:    nil,
		Rejection:   nil,
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		verdict.Rejection = fmt.Errorf("%w: %s", ErrOutputMissing, path)
		v.log.Error("Output validation: %v", verdict.Rejection)

		return verdict
	}

	verdict.FileSize = info.Size()

	if verdict.FileSize < v.minBytes {
		verdict.Rejection = fmt.Errorf(
			"%w: %d bytes (minimum %d)", ErrOutputTooSmall, verdict.FileSize, v.minBytes)

		return verdict
	}

	if verdict.FileSize > v.maxBytes {
		verdict.Warnings = append(verdict.Warnings,
			fmt.Sprintf(fmtWarnVeryLarge, verdict.FileSize, v.maxBytes))
	}

	if v.probe != nil && v.probe.Available() {
		probeVerdict := v.applyProbe(ctx, path, &verdict)
		if !probeVerdict {
			return verdict
		}
	}

	verdict.Accepted = true

	return verdict
}

// applyProbe runs the decoding probe and folds its findings into the verdict.
// It returns false when the probe rejects the file.
func (v *Validator) applyProbe(ctx context.Context, path string, verdict *core.ValidationVerdict) bool {
	report, probeErr := v.probe.Inspect(ctx, path)
	if probeErr != nil {
		if errors.Is(probeErr, ErrProbeDecode) {
			verdict.Rejection = fmt.Errorf("%w: %w", ErrOutputCorrupt, probeErr)

			return false
		}

		// The probe itself failed to run; degrade to size-only validation.
		v.log.Warn("Decoding probe unavailable for %s: %v", path, probeErr)

		return true
	}

	verdict.Duration = report.Duration
	verdict.HasDuration = true

	if report.Duration < v.minDuration {
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf(
			fmtWarnShortDuration,
			report.Duration.Seconds(),
			v.minDuration.Seconds(),
		))
	}

	return true
}
