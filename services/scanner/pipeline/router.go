// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline selects and executes the ordered stage sequence for a
// detected (language, dependency manager) pair. Each ecosystem is a value
// behind a common Pipeline interface, registered in a strategy table, so
// adding one is a local change and routing stays exhaustive.
package pipeline

import (
	"context"
	"time"

	"github.com/google/shlex"

	"github.com/AleutianAI/sbomscan/services/scanner/detect"
)

// Ecosystem is one supported (language, dependency manager) pair.
type Ecosystem struct {
	Language string
	Manager  string
}

// Pipeline runs the fixed stage sequence of one ecosystem inside a job's
// private working directory.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, job *JobContext) error
}

// Options configures a Router.
type Options struct {
	// Runner executes external tools; defaults to an ExecRunner bound by
	// StageTimeout.
	Runner Runner

	// StageTimeout bounds every external tool invocation.
	StageTimeout time.Duration

	// ToolsDir is the absolute directory for acquired build tools.
	ToolsDir string

	// TrivyArgs is a shell-style string of extra scanner arguments.
	TrivyArgs string

	// MavenVersion and MavenBaseURL control build tool acquisition for
	// Maven repositories.
	MavenVersion string
	MavenBaseURL string
}

// Router maps ecosystems to their pipeline variant.
type Router struct {
	table map[Ecosystem]Pipeline
}

// NewRouter builds the routing table for the supported ecosystems.
func NewRouter(opts Options) *Router {
	runner := opts.Runner
	if runner == nil {
		runner = &ExecRunner{Timeout: opts.StageTimeout}
	}

	trivyArgs, err := shlex.Split(opts.TrivyArgs)
	if err != nil {
		// A malformed extra-args string is a configuration mistake, not a
		// per-job condition; ignore it rather than poison every scan.
		trivyArgs = nil
	}

	python := &PythonPipeline{runner: runner, trivyArgs: trivyArgs}
	golang := &GoPipeline{runner: runner, trivyArgs: trivyArgs}
	maven := NewMavenPipeline(runner, opts.ToolsDir, opts.MavenVersion, opts.MavenBaseURL, trivyArgs)

	table := make(map[Ecosystem]Pipeline)
	for _, mgr := range []string{
		detect.ManagerPip,
		detect.ManagerPoetry,
		detect.ManagerUV,
		detect.ManagerPipenv,
		detect.ManagerSetuptools,
		detect.ManagerFlit,
		detect.ManagerPyproject,
	} {
		table[Ecosystem{detect.LanguagePython, mgr}] = python
	}
	table[Ecosystem{detect.LanguageGo, detect.ManagerGoModules}] = golang
	table[Ecosystem{detect.LanguageJava, detect.ManagerMaven}] = maven

	return &Router{table: table}
}

// Route returns the pipeline for a detected pair, or false when the
// combination is unsupported. Unsupported is a reported condition for the
// caller, not an error.
func (r *Router) Route(language, manager string) (Pipeline, bool) {
	p, ok := r.table[Ecosystem{language, manager}]
	return p, ok
}

// Register adds or replaces the pipeline for an ecosystem.
func (r *Router) Register(eco Ecosystem, p Pipeline) {
	r.table[eco] = p
}
