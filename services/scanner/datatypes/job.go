// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Active reports whether the job still occupies its id for admission purposes.
func (s JobStatus) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Terminal reports whether the job has finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the registry record for a single scan.
//
// StartedAt and FinishedAt are each set exactly once, on the transition
// into running and into a terminal state respectively. Error is populated
// only for failed jobs and carries the full failure trace; ReportPath is
// populated only for completed jobs.
type Job struct {
	ID                string     `json:"id"`
	GitURL            string     `json:"git_url"`
	Status            JobStatus  `json:"status"`
	Language          string     `json:"language,omitempty"`
	DependencyManager string     `json:"dependency_manager,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Error             string     `json:"error,omitempty"`
	ReportPath        string     `json:"report_path,omitempty"`
}

// Clone returns a deep copy safe to hand out while the registry keeps
// mutating the original.
func (j *Job) Clone() *Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
