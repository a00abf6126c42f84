// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline package. A stage-level tool failure
// aborts the whole pipeline and surfaces verbatim as the job's terminal
// error; only reconciliation is degraded instead of aborted.
var (
	// ErrFetch is returned when the repository cannot be cloned.
	ErrFetch = errors.New("repository fetch failed")

	// ErrDependencyInstall is returned when resolving or installing
	// declared dependencies fails.
	ErrDependencyInstall = errors.New("dependency installation failed")

	// ErrSBOMGeneration is returned when the SBOM tool fails or produces
	// no output.
	ErrSBOMGeneration = errors.New("sbom generation failed")

	// ErrScan is returned when the vulnerability scanner fails.
	ErrScan = errors.New("vulnerability scan failed")

	// ErrToolAcquisition is returned when a required build tool cannot be
	// installed or downloaded.
	ErrToolAcquisition = errors.New("build tool acquisition failed")

	// ErrStageTimeout is returned when an external tool exceeds the
	// configured per-stage timeout.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrInvalidWorkDir is returned when a stage is invoked without an
	// absolute working directory. Stages never rely on the process-wide
	// current directory.
	ErrInvalidWorkDir = errors.New("working directory must be absolute")
)

// StageError ties a failure to the stage that raised it. The wrapped error
// keeps the taxonomy sentinel reachable through errors.Is, and Output
// carries the tool's stderr verbatim for the durable trace.
type StageError struct {
	Stage  string
	Err    error
	Output string
}

func (e *StageError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("stage %q: %v\n%s", e.Stage, e.Err, e.Output)
	}
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageFail wraps a cause with the stage name and its taxonomy kind,
// keeping any captured tool output.
func stageFail(stage string, kind, cause error) error {
	var cmdErr *CommandError
	if errors.As(cause, &cmdErr) {
		return &StageError{
			Stage:  stage,
			Err:    fmt.Errorf("%w: %v", kind, cmdErr.Summary()),
			Output: cmdErr.Stderr,
		}
	}
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", kind, cause)}
}

// CommandError is a failed external tool invocation.
type CommandError struct {
	Line   string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q: %v\n%s", e.Line, e.Err, e.Stderr)
	}
	return fmt.Sprintf("command %q: %v", e.Line, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Summary is the one-line form without the captured stderr.
func (e *CommandError) Summary() string {
	return fmt.Sprintf("command %q: %v", e.Line, e.Err)
}
