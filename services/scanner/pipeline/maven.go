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
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

// MavenPipeline handles pom-based Java repositories. Maven itself is a
// runtime dependency we cannot assume on the worker host, so the pipeline
// discovers it on PATH and falls back to downloading a pinned Apache
// distribution into the shared tools directory.
type MavenPipeline struct {
	runner    Runner
	toolsDir  string
	version   string
	baseURL   string
	trivyArgs []string
}

const (
	defaultMavenVersion = "3.9.9"
	defaultMavenBaseURL = "https://archive.apache.org/dist/maven/maven-3"
	cycloneDXMavenGoal  = "org.cyclonedx:cyclonedx-maven-plugin:2.9.1:makeAggregateBom"
)

// NewMavenPipeline builds the pipeline. Empty version or baseURL select
// the pinned defaults.
func NewMavenPipeline(runner Runner, toolsDir, version, baseURL string, trivyArgs []string) *MavenPipeline {
	if version == "" {
		version = defaultMavenVersion
	}
	if baseURL == "" {
		baseURL = defaultMavenBaseURL
	}
	return &MavenPipeline{
		runner:    runner,
		toolsDir:  toolsDir,
		version:   version,
		baseURL:   strings.TrimRight(baseURL, "/"),
		trivyArgs: trivyArgs,
	}
}

func (p *MavenPipeline) Name() string { return "maven" }

func (p *MavenPipeline) Run(ctx context.Context, job *JobContext) error {
	mvn, err := p.acquireMaven(ctx)
	if err != nil {
		return stageFail("tooling", ErrToolAcquisition, err)
	}

	sbomPath, err := p.generateSBOM(ctx, job, mvn)
	if err != nil {
		return err
	}

	outs, err := scanSBOM(ctx, p.runner, p.Name(), sbomPath, job.WorkDir, p.trivyArgs)
	if err != nil {
		return err
	}
	recordScanOutputs(job, outs)

	// Maven resolves and builds in one pass; there is no independent
	// resolver view to reconcile the SBOM against.
	job.RecordSkipped(datatypes.ArtifactReconciliation, "no resolver view to compare")
	return nil
}

// acquireMaven returns an mvn executable, preferring the host install.
func (p *MavenPipeline) acquireMaven(ctx context.Context) (string, error) {
	if path, err := p.runner.LookPath("mvn"); err == nil {
		return path, nil
	}

	extracted := filepath.Join(p.toolsDir, "apache-maven-"+p.version)
	mvn := filepath.Join(extracted, "bin", "mvn")
	if fileExists(mvn) {
		return mvn, nil
	}

	if err := os.MkdirAll(p.toolsDir, 0750); err != nil {
		return "", err
	}

	archive := filepath.Join(p.toolsDir, fmt.Sprintf("apache-maven-%s-bin.zip", p.version))
	url := fmt.Sprintf("%s/%s/binaries/apache-maven-%s-bin.zip", p.baseURL, p.version, p.version)
	slog.Info("downloading maven distribution",
		slog.String("url", url),
		slog.String("dest", archive),
	)
	if err := downloadFile(ctx, url, archive); err != nil {
		return "", err
	}

	if err := extractZip(archive, p.toolsDir); err != nil {
		return "", err
	}
	if err := os.Chmod(mvn, 0755); err != nil {
		return "", err
	}
	return mvn, nil
}

// generateSBOM runs the CycloneDX maven plugin and copies the aggregate
// bom next to the other job artifacts.
func (p *MavenPipeline) generateSBOM(ctx context.Context, job *JobContext, mvn string) (string, error) {
	start := time.Now()
	defer observeStage(p.Name(), "sbom", start)

	if _, err := p.runner.Run(ctx, Command{
		Name: mvn,
		Args: []string{cycloneDXMavenGoal, "-DoutputFormat=json", "--batch-mode"},
		Dir:  job.RepoPath,
	}); err != nil {
		return "", stageFail("sbom", ErrSBOMGeneration, err)
	}

	bom := filepath.Join(job.RepoPath, "target", "bom.json")
	sbomPath := filepath.Join(job.WorkDir, "sbom.json")
	if err := copyFile(bom, sbomPath); err != nil {
		return "", stageFail("sbom", ErrSBOMGeneration, err)
	}
	job.RecordFile(datatypes.ArtifactSBOM, sbomPath)
	return sbomPath, nil
}

func downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractZip unpacks an archive under destDir, refusing entries that would
// escape it.
func extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	cleanDest := filepath.Clean(destDir)
	for _, entry := range reader.File {
		target := filepath.Join(cleanDest, entry.Name)
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return err
		}
		if err := extractZipEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(entry *zip.File, target string) error {
	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
