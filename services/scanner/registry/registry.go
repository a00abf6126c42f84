// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry tracks job identity and lifecycle. It is the single
// mutable table keyed by job id, mutated by the coordinator on submit and
// delete and by exactly one worker per job on status transitions.
//
// Lifecycle: pending -> running -> completed | failed. Terminal jobs keep
// occupying their id until deleted; resubmitting a terminal id overwrites
// the record. Poll falls back to the durable store so completed and failed
// jobs stay queryable across a process restart.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
	"github.com/AleutianAI/sbomscan/services/scanner/report"
)

// Registry is the in-memory job table. All methods are safe for concurrent
// use; every read-modify-write of a record happens under the table mutex,
// so transitions on the same key are serialized.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*datatypes.Job
	store *report.Store
}

// New creates a registry backed by the given durable store.
func New(store *report.Store) *Registry {
	return &Registry{
		jobs:  make(map[string]*datatypes.Job),
		store: store,
	}
}

// Submit admits a new pending job for id.
//
// An active (pending or running) job on the same id is rejected with
// ErrConflict. A terminal record is overwritten; the caller is responsible
// for deleting prior durable artifacts if a clean run is wanted.
func (r *Registry) Submit(id, gitURL string) (*datatypes.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[id]; ok && existing.Status.Active() {
		return nil, fmt.Errorf("%w: %q is %s", ErrConflict, id, existing.Status)
	}

	job := &datatypes.Job{
		ID:     id,
		GitURL: gitURL,
		Status: datatypes.StatusPending,
	}
	r.jobs[id] = job
	return job.Clone(), nil
}

// MarkRunning records that a worker picked the job up. StartedAt is set
// exactly once.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status != datatypes.StatusPending {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, job.Status)
	}

	job.Status = datatypes.StatusRunning
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	return nil
}

// MarkCompleted transitions a running job to completed and records where
// the aggregated report lives. FinishedAt is set exactly once.
func (r *Registry) MarkCompleted(id, language, manager, reportPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status != datatypes.StatusRunning {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, job.Status)
	}

	job.Status = datatypes.StatusCompleted
	job.Language = language
	job.DependencyManager = manager
	job.ReportPath = reportPath
	job.Error = ""
	if job.FinishedAt == nil {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}
	return nil
}

// MarkFailed transitions a running job to failed, absorbing the full
// failure trace. FinishedAt is set exactly once.
func (r *Registry) MarkFailed(id, language, manager, trace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, job.Status)
	}

	job.Status = datatypes.StatusFailed
	job.Language = language
	job.DependencyManager = manager
	job.Error = trace
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if job.FinishedAt == nil {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}
	return nil
}

// Poll returns the caller-facing view of a job.
//
// When the id is missing from memory (process restarted), the durable
// store decides: a persisted report means completed, a persisted error
// trace means failed, neither means ErrNotFound. Completed jobs carry the
// aggregated report; failed jobs carry the error trace.
func (r *Registry) Poll(id string) (*datatypes.ScanStatus, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	if ok {
		job = job.Clone()
	}
	r.mu.RUnlock()

	if !ok {
		return r.pollDurable(id)
	}

	status := &datatypes.ScanStatus{
		ID:                job.ID,
		Status:            job.Status,
		Language:          job.Language,
		DependencyManager: job.DependencyManager,
		StartedAt:         job.StartedAt,
		FinishedAt:        job.FinishedAt,
		Error:             job.Error,
	}
	if job.Status == datatypes.StatusCompleted {
		// Absence of a loadable report degrades to a nil report, it
		// does not fail the poll.
		if rep, err := r.store.LoadReport(id); err == nil {
			status.Report = rep
		}
	}
	return status, nil
}

// pollDurable reconstructs a terminal view from the durable store alone.
func (r *Registry) pollDurable(id string) (*datatypes.ScanStatus, error) {
	if rep, err := r.store.LoadReport(id); err == nil {
		status := &datatypes.ScanStatus{
			ID:     id,
			Status: datatypes.StatusCompleted,
			Report: rep,
		}
		if lang, ok := rep.Artifacts["language"].(string); ok {
			status.Language = lang
		}
		if mgr, ok := rep.Artifacts["dependency_manager"].(string); ok {
			status.DependencyManager = mgr
		}
		return status, nil
	}

	if trace, err := r.store.LoadErrorTrace(id); err == nil {
		return &datatypes.ScanStatus{
			ID:     id,
			Status: datatypes.StatusFailed,
			Error:  trace,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes a terminal job: the in-memory record and every durable
// artifact. Deleting a pending or running job fails with ErrInvalidState;
// an id unknown to both memory and the store fails with ErrNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, inMemory := r.jobs[id]
	if inMemory && job.Status.Active() {
		return fmt.Errorf("%w: %q is %s", ErrInvalidState, id, job.Status)
	}

	if !inMemory {
		_, repErr := r.store.LoadReport(id)
		_, traceErr := r.store.LoadErrorTrace(id)
		if errors.Is(repErr, report.ErrRecordNotFound) && errors.Is(traceErr, report.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}

	delete(r.jobs, id)
	return r.store.Remove(id)
}
