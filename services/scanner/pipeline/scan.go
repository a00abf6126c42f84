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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
	"github.com/AleutianAI/sbomscan/services/scanner/reconcile"
)

// scanOutputs are the three report files every scan stage produces.
type scanOutputs struct {
	CycloneDX string
	JSON      string
	Table     string
}

// scanSBOM runs the vulnerability scanner against an SBOM in its three
// output formats. The formats are independent, so they run concurrently;
// any failure aborts the stage with ErrScan.
func scanSBOM(ctx context.Context, runner Runner, ecosystem, sbomPath, outDir string, extraArgs []string) (scanOutputs, error) {
	start := time.Now()
	defer observeStage(ecosystem, "scan", start)

	outs := scanOutputs{
		CycloneDX: filepath.Join(outDir, "trivy_cyclonedx.json"),
		JSON:      filepath.Join(outDir, "trivy_report.json"),
		Table:     filepath.Join(outDir, "trivy_table.txt"),
	}

	formats := []struct {
		format string
		out    string
	}{
		{"cyclonedx", outs.CycloneDX},
		{"json", outs.JSON},
		{"table", outs.Table},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range formats {
		g.Go(func() error {
			args := []string{"sbom", sbomPath, "--format", f.format, "--scanners", "vuln", "-o", f.out}
			args = append(args, extraArgs...)
			_, err := runner.Run(gctx, Command{Name: "trivy", Args: args, Dir: outDir})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return outs, stageFail("scan", ErrScan, err)
	}
	return outs, nil
}

// recordScanOutputs registers the three scan reports on the job and loads
// the JSON payloads best-effort.
func recordScanOutputs(job *JobContext, outs scanOutputs) {
	job.RecordFile(datatypes.ArtifactSBOMCycloneDX, outs.CycloneDX)
	job.RecordFile(datatypes.ArtifactScanReport, outs.JSON)
	job.RecordFile(datatypes.ArtifactScanTable, outs.Table)
	job.AttachParsed(datatypes.ArtifactScanReport, outs.JSON)
	job.AttachParsed(datatypes.ArtifactSBOMCycloneDX, outs.CycloneDX)
}

// reconcileViews diffs the resolver view against the SBOM view and records
// the outcome on the job. A missing resolver view or malformed inputs are
// expected conditions: they degrade to a recorded "unavailable" outcome
// and never fail the job.
func reconcileViews(job *JobContext, treePath, sbomPath string) {
	if _, err := os.Stat(treePath); err != nil {
		job.RecordSkipped(datatypes.ArtifactReconciliation, "no resolver view to compare")
		return
	}

	outPath := filepath.Join(job.WorkDir, "comparison.txt")
	res, err := reconcile.GenerateComparison(treePath, sbomPath, outPath)
	if err != nil {
		job.Artifacts[datatypes.ArtifactReconciliation] = fmt.Sprintf("unavailable: %v", err)
		return
	}

	job.RecordFile(datatypes.ArtifactReconciliation, outPath)
	job.Results[datatypes.ArtifactReconciliation] = res
}
