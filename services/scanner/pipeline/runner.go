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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Command is one external tool invocation. Dir is mandatory and must be
// absolute: multiple jobs run concurrently, so nothing here may lean on
// the process-wide current directory.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin string
	Env   []string
}

// CommandResult carries the captured output of a finished invocation.
type CommandResult struct {
	Stdout string
	Stderr string
}

// Runner executes external tools. The interface exists so pipeline logic
// can be exercised without the real binaries installed.
type Runner interface {
	Run(ctx context.Context, spec Command) (*CommandResult, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands through os/exec with an optional per-invocation
// timeout. Safe for concurrent use.
type ExecRunner struct {
	// Timeout bounds each invocation; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Run executes the command, capturing stdout and stderr. A deadline hit
// maps to ErrStageTimeout so a stalled tool becomes a distinguishable
// failure instead of a silently hung job.
func (r *ExecRunner) Run(ctx context.Context, spec Command) (*CommandResult, error) {
	if spec.Dir == "" || !filepath.IsAbs(spec.Dir) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkDir, spec.Dir)
	}

	cmdCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	line := commandLine(spec)

	slog.Debug("tool finished",
		slog.String("command", line),
		slog.Duration("duration", time.Since(start)),
	)

	// cmdCtx surfaces its parent's error too, so check the caller's
	// context first: only a deadline the stage itself imposed maps to
	// ErrStageTimeout.
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if r.Timeout > 0 && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s after %s", ErrStageTimeout, line, r.Timeout)
	}
	if err != nil {
		return res, &CommandError{Line: line, Err: err, Stderr: stderr.String()}
	}
	return res, nil
}

// LookPath probes the execution path for a tool binary.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func commandLine(spec Command) string {
	if len(spec.Args) == 0 {
		return spec.Name
	}
	return spec.Name + " " + strings.Join(spec.Args, " ")
}
