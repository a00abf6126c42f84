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
	"encoding/json"
	"os"
)

// JobContext is the mutable state of one pipeline execution. It is owned
// by exactly one worker and collects the artifacts the final report
// aggregates. All paths are absolute.
type JobContext struct {
	ID       string
	RepoRef  string
	WorkDir  string
	RepoPath string

	Language string
	Manager  string

	// Artifacts maps artifact kinds to locations or small scalar facts.
	Artifacts map[string]any
	// ResultFiles is the subset of artifacts that are result payloads.
	ResultFiles map[string]string
	// Results holds parsed JSON payloads, loaded best-effort.
	Results map[string]any
}

// NewJobContext builds an empty context for a job rooted at workDir.
func NewJobContext(id, repoRef, workDir string) *JobContext {
	return &JobContext{
		ID:          id,
		RepoRef:     repoRef,
		WorkDir:     workDir,
		Artifacts:   make(map[string]any),
		ResultFiles: make(map[string]string),
		Results:     make(map[string]any),
	}
}

// RecordFile registers a produced result file under the given kind.
func (j *JobContext) RecordFile(kind, path string) {
	j.Artifacts[kind] = path
	j.ResultFiles[kind] = path
}

// RecordSkipped notes that an optional stage did not run. A skipped stage
// is a recorded outcome, never a failure.
func (j *JobContext) RecordSkipped(kind, reason string) {
	j.Artifacts[kind] = "skipped: " + reason
}

// AttachParsed loads a JSON payload into Results. Absence or corruption of
// the payload is tolerated; the file location stays in ResultFiles either
// way.
func (j *JobContext) AttachParsed(key, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		j.Results[key] = nil
		return
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		j.Results[key] = nil
		return
	}
	j.Results[key] = payload
}
