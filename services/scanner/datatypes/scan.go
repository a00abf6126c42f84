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

// ScanRequest is the submit payload.
type ScanRequest struct {
	ID string `json:"id" binding:"required"`
	// GitURL is a repository URL with an optional branch suffix,
	// e.g. https://github.com/user/repo.git@main
	GitURL string `json:"git_url" binding:"required"`
}

// ScanStatus is the poll response. Report is attached only for completed
// jobs, Error only for failed ones.
type ScanStatus struct {
	ID                string     `json:"id"`
	Status            JobStatus  `json:"status"`
	Language          string     `json:"language,omitempty"`
	DependencyManager string     `json:"dependency_manager,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Error             string     `json:"error,omitempty"`
	Report            *Report    `json:"report,omitempty"`
}

// Report is the aggregated result document persisted when a job completes.
//
// Artifacts maps a logical artifact kind to its absolute location (or to
// small scalar facts such as the detected language). ResultFiles is the
// subset of artifacts that are result payloads on disk. Results carries
// parsed JSON payloads where loading them succeeded; absence of a parsed
// payload is not an error.
type Report struct {
	Repo         string            `json:"repo"`
	Artifacts    map[string]any    `json:"artifacts"`
	ResultFiles  map[string]string `json:"result_files"`
	Results      map[string]any    `json:"results"`
	GeneratedAt  time.Time         `json:"generated_at"`
	GenerationID string            `json:"generation_id"`
	ReportPath   string            `json:"report_path,omitempty"`
}

// Artifact kinds recorded in Report.Artifacts and Report.ResultFiles.
const (
	ArtifactDependencyTree = "deps_file"
	ArtifactSBOM           = "sbom"
	ArtifactSBOMCycloneDX  = "trivy_cyclonedx_json"
	ArtifactScanReport     = "trivy_report_json"
	ArtifactScanTable      = "trivy_table"
	ArtifactReconciliation = "comparison"
)
