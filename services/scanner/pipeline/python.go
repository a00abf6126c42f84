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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

// PythonPipeline handles interpreted repositories managed by pip, poetry,
// uv, pipenv, setuptools, flit or a bare pyproject.
//
// Stage order: isolate environment, install declared dependencies,
// normalize an optional pre-existing manifest, generate an SBOM from the
// resolved dependency listing, scan it, reconcile against the normalized
// manifest when one exists.
type PythonPipeline struct {
	runner    Runner
	trivyArgs []string
}

const pythonEnvName = "sbom-env"

func (p *PythonPipeline) Name() string { return "python" }

func (p *PythonPipeline) Run(ctx context.Context, job *JobContext) error {
	envDir, err := p.isolateEnvironment(ctx, job)
	if err != nil {
		return err
	}

	if err := p.installDeclaredDependencies(ctx, job, envDir); err != nil {
		return err
	}

	p.normalizeManifest(job)

	sbomPath, err := p.generateSBOM(ctx, job, envDir)
	if err != nil {
		return err
	}
	if sbomPath == "" {
		// Nothing to scan; the job still completes with what it has.
		return nil
	}

	outs, err := scanSBOM(ctx, p.runner, p.Name(), sbomPath, job.WorkDir, p.trivyArgs)
	if err != nil {
		return err
	}
	recordScanOutputs(job, outs)

	reconcileViews(job, filepath.Join(job.WorkDir, "normalized_deps.json"), outs.CycloneDX)
	return nil
}

// isolateEnvironment creates the job-private virtual environment and seeds
// it with the SBOM tool.
func (p *PythonPipeline) isolateEnvironment(ctx context.Context, job *JobContext) (string, error) {
	start := time.Now()
	defer observeStage(p.Name(), "environment", start)

	envDir := filepath.Join(job.WorkDir, pythonEnvName)
	if _, err := p.runner.Run(ctx, Command{
		Name: "python3",
		Args: []string{"-m", "venv", envDir},
		Dir:  job.WorkDir,
	}); err != nil {
		return "", stageFail("environment", ErrDependencyInstall, err)
	}

	if _, err := p.runner.Run(ctx, Command{
		Name: venvBin(envDir, "pip"),
		Args: []string{"install", "--quiet", "cyclonedx-bom"},
		Dir:  job.WorkDir,
	}); err != nil {
		return "", stageFail("environment", ErrDependencyInstall, err)
	}

	job.Artifacts["venv_path"] = envDir
	return envDir, nil
}

// installDeclaredDependencies installs the repository's manifest into the
// environment and freezes the resolved listing to all-dep.txt. A missing
// manifest is a recorded skip, not a failure.
func (p *PythonPipeline) installDeclaredDependencies(ctx context.Context, job *JobContext, envDir string) error {
	start := time.Now()
	defer observeStage(p.Name(), "install", start)

	pip := venvBin(envDir, "pip")

	var installArgs []string
	switch {
	case fileExists(filepath.Join(job.RepoPath, "requirements.txt")):
		installArgs = []string{"install", "--quiet", "-r", filepath.Join(job.RepoPath, "requirements.txt")}
	case fileExists(filepath.Join(job.RepoPath, "pyproject.toml")),
		fileExists(filepath.Join(job.RepoPath, "setup.py")):
		installArgs = []string{"install", "--quiet", job.RepoPath}
	default:
		job.RecordSkipped("dependency_install", "no declared dependency manifest")
		return nil
	}

	if _, err := p.runner.Run(ctx, Command{Name: pip, Args: installArgs, Dir: job.RepoPath}); err != nil {
		return stageFail("install", ErrDependencyInstall, err)
	}

	freeze, err := p.runner.Run(ctx, Command{Name: pip, Args: []string{"freeze"}, Dir: job.RepoPath})
	if err != nil {
		return stageFail("install", ErrDependencyInstall, err)
	}

	depFile := filepath.Join(job.WorkDir, "all-dep.txt")
	if err := os.WriteFile(depFile, []byte(freeze.Stdout), 0640); err != nil {
		return stageFail("install", ErrDependencyInstall, err)
	}
	job.Artifacts["resolved_deps_path"] = depFile
	return nil
}

// normalizeManifest converts an optional dets.json manifest into the
// resolver-view shape the reconciliation loaders understand. The manifest
// is a reconciliation input, so corruption degrades instead of failing the
// job.
func (p *PythonPipeline) normalizeManifest(job *JobContext) {
	var manifest string
	for _, candidate := range []string{
		filepath.Join(job.RepoPath, "dets.json"),
		filepath.Join(job.WorkDir, "dets.json"),
	} {
		if fileExists(candidate) {
			manifest = candidate
			break
		}
	}
	if manifest == "" {
		job.Artifacts["normalized_deps_path"] = nil
		return
	}

	outPath := filepath.Join(job.WorkDir, "normalized_deps.json")
	if err := normalizeDependencyManifest(manifest, outPath); err != nil {
		slog.Warn("manifest normalization failed",
			slog.String("job_id", job.ID),
			slog.String("manifest", manifest),
			slog.String("error", err.Error()),
		)
		job.Artifacts["normalized_deps_path"] = nil
		return
	}
	job.Artifacts["normalized_deps_path"] = outPath
}

// generateSBOM produces sbom.json from the first resolved dependency
// listing present. No listing means the stage is skipped.
func (p *PythonPipeline) generateSBOM(ctx context.Context, job *JobContext, envDir string) (string, error) {
	start := time.Now()
	defer observeStage(p.Name(), "sbom", start)

	var depFile string
	for _, candidate := range []string{"all-dep.txt", "a.txt"} {
		if fileExists(filepath.Join(job.WorkDir, candidate)) {
			depFile = filepath.Join(job.WorkDir, candidate)
			break
		}
	}
	if depFile == "" {
		job.RecordSkipped(datatypes.ArtifactSBOM, "no dependency listing for sbom generation")
		return "", nil
	}

	sbomPath := filepath.Join(job.WorkDir, "sbom.json")
	if _, err := p.runner.Run(ctx, Command{
		Name: venvBin(envDir, "cyclonedx-py"),
		Args: []string{"requirements", depFile, "-o", sbomPath},
		Dir:  job.WorkDir,
	}); err != nil {
		return "", stageFail("sbom", ErrSBOMGeneration, err)
	}

	job.RecordFile(datatypes.ArtifactSBOM, sbomPath)
	return sbomPath, nil
}

// normalizeDependencyManifest accepts either a {"name": "version"} object
// or a [{"name": ..., "version": ...}] list and writes the packages-tree
// shape the tree loader reads.
func normalizeDependencyManifest(inPath, outPath string) error {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}

	type pkg struct {
		Name     string   `json:"name"`
		Children []string `json:"children"`
	}
	var packages []pkg

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for name, version := range asMap {
			packages = append(packages, pkg{Name: name + "@" + version, Children: []string{}})
		}
	} else {
		var asList []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}
		if err := json.Unmarshal(raw, &asList); err != nil {
			return fmt.Errorf("unrecognized manifest shape: %w", err)
		}
		for _, entry := range asList {
			if entry.Name == "" || entry.Version == "" {
				continue
			}
			packages = append(packages, pkg{Name: entry.Name + "@" + entry.Version, Children: []string{}})
		}
	}

	if packages == nil {
		packages = []pkg{}
	}
	doc := map[string]any{"packages": packages}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, payload, 0640)
}

// venvBin returns the path of a tool inside a virtual environment.
func venvBin(envDir, name string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envDir, "Scripts", name)
	}
	return filepath.Join(envDir, "bin", name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
