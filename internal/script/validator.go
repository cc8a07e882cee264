// Package script validates podcast script files before synthesis and
// estimates their spoken duration.
package script

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// Thresholds carried over from the original podcast tooling: roughly 160
// characters per spoken minute, 3000-5000 characters for a comfortable
// episode, and a 1 MiB ceiling before generation time becomes a risk.
const (
	CharsPerMinute   = 160
	ShortScriptChars = 3000
	LongScriptChars  = 5000
	largeInputBytes  = 1 << 20
)

var (
	// ErrMissingInput indicates that the script file does not exist.
	ErrMissingInput = errors.New("script file does not exist")
	// ErrEmptyInput indicates that the script file has zero content.
	ErrEmptyInput = errors.New("script file is empty")
)

// Warning messages. Warnings are informational only and never block execution.
const (
	warnLargeInput = "script exceeds 1 MiB; generation may take a long time"
	warnEncoding   = "script encoding could not be confirmed as UTF-8"
	fmtWarnShort   = "script is short (%d chars, below %d); audio may be brief"
	fmtWarnLong    = "script is long (%d chars, above %d); consider trimming"
)

// Report is the Input Validator's pass result: character count, raw size, the
// estimated spoken duration, and any non-fatal warnings.
type Report struct {
	CharCount        int
	SizeBytes        int64
	EstimatedMinutes float64
	Warnings         []string
}

// Validate checks that the script at path is present, non-empty, and plausibly
// encoded, and derives the expected spoken duration from its character count.
// It has no side effects beyond reading the file.
func Validate(path string) (*Report, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}

		return nil, fmt.Errorf("failed to stat script %s: %w", path, statErr)
	}

	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}

	content, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, readErr)
	}

	report := &Report{
		CharCount:        utf8.RuneCount(content),
		SizeBytes:        info.Size(),
		EstimatedMinutes: 0,
		Warnings:         nil,
	}
	report.EstimatedMinutes = float64(report.CharCount) / CharsPerMinute

	if info.Size() > largeInputBytes {
		report.Warnings = append(report.Warnings, warnLargeInput)
	}

	if !utf8.Valid(content) {
		report.Warnings = append(report.Warnings, warnEncoding)
	}

	switch {
	case report.CharCount < ShortScriptChars:
		report.Warnings = append(report.Warnings,
			fmt.Sprintf(fmtWarnShort, report.CharCount, ShortScriptChars))
	case report.CharCount > LongScriptChars:
		report.Warnings = append(report.Warnings,
			fmt.Sprintf(fmtWarnLong, report.CharCount, LongScriptChars))
	}

	return report, nil
}
