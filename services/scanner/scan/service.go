// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan coordinates the asynchronous scan jobs: it admits
// submissions through the registry, runs each admitted job on its own
// goroutine under a concurrency cap, and persists the terminal outcome
// before the state machine reports it.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/sbomscan/services/scanner/config"
	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
	"github.com/AleutianAI/sbomscan/services/scanner/detect"
	"github.com/AleutianAI/sbomscan/services/scanner/pipeline"
	"github.com/AleutianAI/sbomscan/services/scanner/registry"
	"github.com/AleutianAI/sbomscan/services/scanner/report"
)

// ============================================================================
// Metrics
// ============================================================================

var (
	jobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sbomscan_jobs_started_total",
		Help: "Scan jobs admitted and dispatched.",
	})
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomscan_jobs_finished_total",
		Help: "Scan jobs that reached a terminal state, by outcome.",
	}, []string{"outcome"})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sbomscan_job_duration_seconds",
		Help:    "Wall time from dispatch to terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// ============================================================================
// Service
// ============================================================================

// Service is the job coordinator. Its lifecycle methods are safe for
// concurrent use; one Service owns one registry and one durable store.
type Service struct {
	cfg      *config.Config
	store    *report.Store
	registry *registry.Registry
	router   *pipeline.Router
	runner   pipeline.Runner

	sem *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a Service from configuration. A nil runner selects the real
// os/exec runner bound by the configured stage timeout.
func New(cfg *config.Config, store *report.Store, runner pipeline.Runner) *Service {
	if runner == nil {
		runner = &pipeline.ExecRunner{Timeout: cfg.StageTimeout}
	}

	router := pipeline.NewRouter(pipeline.Options{
		Runner:       runner,
		StageTimeout: cfg.StageTimeout,
		ToolsDir:     cfg.ToolsDir,
		TrivyArgs:    cfg.TrivyArgs,
		MavenVersion: cfg.MavenVersion,
		MavenBaseURL: cfg.MavenBaseURL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		store:    store,
		registry: registry.New(store),
		router:   router,
		runner:   runner,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit admits a scan request and dispatches it for background
// execution. The returned job snapshot is pending; callers observe
// progress through Poll. Admission errors pass through from the registry
// (ErrConflict for an active duplicate).
func (s *Service) Submit(req datatypes.ScanRequest) (*datatypes.Job, error) {
	job, err := s.registry.Submit(req.ID, req.GitURL)
	if err != nil {
		return nil, err
	}

	jobsStarted.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(req.ID, req.GitURL)
	}()

	slog.Info("scan job admitted",
		slog.String("job_id", req.ID),
		slog.String("repo", req.GitURL),
	)
	return job, nil
}

// Poll returns the current view of a job.
func (s *Service) Poll(id string) (*datatypes.ScanStatus, error) {
	return s.registry.Poll(id)
}

// Delete removes a terminal job and its durable records.
func (s *Service) Delete(id string) error {
	return s.registry.Delete(id)
}

// Shutdown drains in-flight jobs, bounded by ctx. Jobs keep their base
// context until the drain finishes; only when ctx expires first are the
// remaining jobs canceled, which fails them with a canceled trace.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// ============================================================================
// Job execution
// ============================================================================

// process runs one admitted job to its terminal state. Every exit path
// persists the outcome before the registry reports it, so a poll after a
// crash-restart still resolves.
func (s *Service) process(id, repoRef string) {
	start := time.Now()
	defer func() { jobDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
		s.fail(id, "", "", fmt.Errorf("job canceled before start: %w", err))
		return
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.JobTimeout)
	defer cancel()

	if err := s.registry.MarkRunning(id); err != nil {
		slog.Error("job could not start", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}

	workDir, err := s.store.EnsureJobDir(id)
	if err != nil {
		s.fail(id, "", "", fmt.Errorf("workspace setup failed: %w", err))
		return
	}

	job := pipeline.NewJobContext(id, repoRef, workDir)

	repoPath, err := pipeline.Fetch(ctx, s.runner, repoRef, workDir)
	if err != nil {
		s.fail(id, "", "", err)
		return
	}
	job.RepoPath = repoPath

	job.Language = detect.Language(repoPath)
	job.Manager = detect.Manager(repoPath, job.Language)
	job.Artifacts["language"] = job.Language
	job.Artifacts["dependency_manager"] = job.Manager

	slog.Info("ecosystem detected",
		slog.String("job_id", id),
		slog.String("language", job.Language),
		slog.String("manager", job.Manager),
	)

	p, supported := s.router.Route(job.Language, job.Manager)
	if !supported {
		// An unsupported ecosystem is a reported outcome, not a failure:
		// the job completes and the report says why nothing was scanned.
		job.Artifacts["unsupported_ecosystem"] = true
		s.complete(id, job)
		return
	}

	if err := p.Run(ctx, job); err != nil {
		s.fail(id, job.Language, job.Manager, err)
		return
	}

	s.complete(id, job)
}

// complete aggregates the job context into the durable report and flips
// the job to completed.
func (s *Service) complete(id string, job *pipeline.JobContext) {
	rep := &datatypes.Report{
		Repo:         job.RepoRef,
		Artifacts:    job.Artifacts,
		ResultFiles:  job.ResultFiles,
		Results:      job.Results,
		GeneratedAt:  time.Now().UTC(),
		GenerationID: uuid.NewString(),
		ReportPath:   filepath.Join(s.store.JobDir(id), "report.json"),
	}

	if err := s.store.SaveReport(id, rep); err != nil {
		s.fail(id, job.Language, job.Manager, fmt.Errorf("report persistence failed: %w", err))
		return
	}
	if err := s.registry.MarkCompleted(id, job.Language, job.Manager, rep.ReportPath); err != nil {
		slog.Error("completed job could not transition",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	jobsFinished.WithLabelValues("completed").Inc()
	slog.Info("scan job completed", slog.String("job_id", id))
}

// fail persists the failure trace verbatim, then flips the job to failed.
// The trace a poller sees is byte-identical to what the store holds.
func (s *Service) fail(id, language, manager string, cause error) {
	trace := cause.Error()

	if err := s.store.SaveErrorTrace(id, trace); err != nil {
		slog.Error("failure trace could not be persisted",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	if err := s.registry.MarkFailed(id, language, manager, trace); err != nil {
		slog.Error("failed job could not transition",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	jobsFinished.WithLabelValues("failed").Inc()
	slog.Warn("scan job failed",
		slog.String("job_id", id),
		slog.String("error", trace),
	)
}
