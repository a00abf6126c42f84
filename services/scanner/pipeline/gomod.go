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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

// GoPipeline handles module-based Go repositories. It renders the resolved
// dependency graph with deptree, generates a CycloneDX SBOM with
// cyclonedx-gomod and reconciles the two views after the scan.
type GoPipeline struct {
	runner    Runner
	trivyArgs []string
}

const deptreeModule = "github.com/vc60er/deptree@latest"

func (p *GoPipeline) Name() string { return "gomod" }

func (p *GoPipeline) Run(ctx context.Context, job *JobContext) error {
	p.surveyUpgrades(ctx, job)

	treePath, err := p.renderDependencyTree(ctx, job)
	if err != nil {
		return err
	}

	sbomPath, err := p.generateSBOM(ctx, job)
	if err != nil {
		return err
	}

	outs, err := scanSBOM(ctx, p.runner, p.Name(), sbomPath, job.WorkDir, p.trivyArgs)
	if err != nil {
		return err
	}
	recordScanOutputs(job, outs)

	reconcileViews(job, treePath, sbomPath)
	return nil
}

// surveyUpgrades tidies the module and captures available upgrades. Both
// steps are advisory; failures are logged and the pipeline moves on.
func (p *GoPipeline) surveyUpgrades(ctx context.Context, job *JobContext) {
	start := time.Now()
	defer observeStage(p.Name(), "survey", start)

	if _, err := p.runner.Run(ctx, Command{
		Name: "go",
		Args: []string{"mod", "tidy"},
		Dir:  job.RepoPath,
	}); err != nil {
		slog.Warn("go mod tidy failed, continuing with the committed graph",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	listing, err := p.runner.Run(ctx, Command{
		Name: "go",
		Args: []string{"list", "-u", "-m", "-json", "all"},
		Dir:  job.RepoPath,
	})
	if err != nil {
		slog.Warn("module upgrade survey failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	upgradeFile := filepath.Join(job.WorkDir, "upgradefile.txt")
	if err := os.WriteFile(upgradeFile, []byte(listing.Stdout), 0640); err != nil {
		slog.Warn("could not persist upgrade survey",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	job.Artifacts["upgrade_survey_path"] = upgradeFile
}

// renderDependencyTree acquires deptree and renders the module graph into
// the resolver view used for reconciliation.
func (p *GoPipeline) renderDependencyTree(ctx context.Context, job *JobContext) (string, error) {
	start := time.Now()
	defer observeStage(p.Name(), "deptree", start)

	deptree, err := p.acquireDeptree(ctx, job)
	if err != nil {
		return "", stageFail("deptree", ErrToolAcquisition, err)
	}

	graph, err := p.runner.Run(ctx, Command{
		Name: "go",
		Args: []string{"mod", "graph"},
		Dir:  job.RepoPath,
	})
	if err != nil {
		return "", stageFail("deptree", ErrDependencyInstall, err)
	}

	rendered, err := p.runner.Run(ctx, Command{
		Name:  deptree,
		Args:  []string{"-json"},
		Dir:   job.RepoPath,
		Stdin: graph.Stdout,
	})
	if err != nil {
		return "", stageFail("deptree", ErrDependencyInstall, err)
	}

	treePath := filepath.Join(job.WorkDir, "t.json")
	if err := os.WriteFile(treePath, []byte(rendered.Stdout), 0640); err != nil {
		return "", stageFail("deptree", ErrDependencyInstall, err)
	}
	job.RecordFile(datatypes.ArtifactDependencyTree, treePath)
	return treePath, nil
}

// acquireDeptree resolves the deptree binary, installing it into GOBIN if
// it is not already on the path.
func (p *GoPipeline) acquireDeptree(ctx context.Context, job *JobContext) (string, error) {
	if path, err := p.runner.LookPath("deptree"); err == nil {
		return path, nil
	}

	if _, err := p.runner.Run(ctx, Command{
		Name: "go",
		Args: []string{"install", deptreeModule},
		Dir:  job.RepoPath,
	}); err != nil {
		return "", err
	}

	if path, err := p.runner.LookPath("deptree"); err == nil {
		return path, nil
	}
	// go install places binaries under GOPATH/bin even when it is not on
	// the worker's PATH.
	gopath, err := p.runner.Run(ctx, Command{
		Name: "go",
		Args: []string{"env", "GOPATH"},
		Dir:  job.RepoPath,
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(strings.TrimSpace(gopath.Stdout), "bin", "deptree"), nil
}

// generateSBOM runs cyclonedx-gomod against the module root.
func (p *GoPipeline) generateSBOM(ctx context.Context, job *JobContext) (string, error) {
	start := time.Now()
	defer observeStage(p.Name(), "sbom", start)

	sbomPath := filepath.Join(job.WorkDir, "sbom.json")
	if _, err := p.runner.Run(ctx, Command{
		Name: "cyclonedx-gomod",
		Args: []string{"mod", "-json", "-output", sbomPath, "."},
		Dir:  job.RepoPath,
	}); err != nil {
		return "", stageFail("sbom", ErrSBOMGeneration, err)
	}
	job.RecordFile(datatypes.ArtifactSBOM, sbomPath)
	return sbomPath, nil
}
