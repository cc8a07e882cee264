// Package audio inspects and validates generated audio artifacts.
package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/zhuangzard/arxiv-scout/internal/core"
)

const ffprobeBinary = "ffprobe"

// ErrProbeDecode indicates that the probe could not decode the file.
var ErrProbeDecode = errors.New("probe failed to decode file")

// ffprobeFormat mirrors the "format" object of ffprobe's JSON output.
type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeOutput struct {
	Format ffprobeFormat `json:"format"`
}

// FFProbe is the decoding probe backed by the ffprobe executable. It queries
// the machine-readable metadata output rather than parsing human-readable
// text.
type FFProbe struct {
	available bool
}

// NewFFProbe checks once whether ffprobe is reachable and returns the probe.
// An unavailable probe degrades validation instead of failing it.
func NewFFProbe() *FFProbe {
	_, err := exec.LookPath(ffprobeBinary)

	return &FFProbe{available: err == nil}
}

// Available reports whether the ffprobe executable was found on PATH.
func (p *FFProbe) Available() bool {
	return p.available
}

// Inspect opens the file with ffprobe and reports its duration and container
// format. A decode failure is reported as ErrProbeDecode with the captured
// diagnostic text.
func (p *FFProbe) Inspect(ctx context.Context, path string) (core.ProbeReport, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		path,
	}

	cmd := exec.CommandContext(ctx, ffprobeBinary, args...)

	output, runErr := cmd.Output()
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return core.ProbeReport{}, fmt.Errorf(
				"%w: %s", ErrProbeDecode, string(exitErr.Stderr))
		}

		return core.ProbeReport{}, fmt.Errorf("failed to run %s: %w", ffprobeBinary, runErr)
	}

	var parsed ffprobeOutput

	unmarshalErr := json.Unmarshal(output, &parsed)
	if unmarshalErr != nil {
		return core.ProbeReport{}, fmt.Errorf("failed to parse %s output: %w", ffprobeBinary, unmarshalErr)
	}

	seconds, parseErr := strconv.ParseFloat(parsed.Format.Duration, 64)
	if parseErr != nil {
		return core.ProbeReport{}, fmt.Errorf(
			"%w: unreadable duration %q", ErrProbeDecode, parsed.Format.Duration)
	}

	return core.ProbeReport{
		Duration:   time.Duration(seconds * float64(time.Second)),
		FormatName: parsed.Format.FormatName,
	}, nil
}
