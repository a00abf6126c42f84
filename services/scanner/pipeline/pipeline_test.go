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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
	"github.com/AleutianAI/sbomscan/services/scanner/detect"
)

// fakeRunner scripts external tool behavior so pipelines can run without
// any of the real binaries installed.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	handler func(spec Command) (*CommandResult, error)
	tools   map[string]string
}

func (f *fakeRunner) Run(_ context.Context, spec Command) (*CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(spec)
	}
	return &CommandResult{}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if path, ok := f.tools[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%s: executable file not found", name)
}

func (f *fakeRunner) callLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		lines = append(lines, commandLine(c))
	}
	return lines
}

// writeOutputFlag writes payload to the file named by the flag following
// marker in the command's arguments.
func writeOutputFlag(t *testing.T, spec Command, marker, payload string) {
	t.Helper()
	for i, arg := range spec.Args {
		if arg == marker && i+1 < len(spec.Args) {
			require.NoError(t, os.WriteFile(spec.Args[i+1], []byte(payload), 0640))
			return
		}
	}
	t.Fatalf("command %q has no %s flag", commandLine(spec), marker)
}

func TestSplitRepoRef(t *testing.T) {
	tests := []struct {
		name   string
		ref    string
		url    string
		branch string
	}{
		{"bare url", "https://github.com/acme/widget.git", "https://github.com/acme/widget.git", ""},
		{"url with branch", "https://github.com/acme/widget.git@develop", "https://github.com/acme/widget.git", "develop"},
		{"branch containing at", "https://github.com/acme/widget@feature@v2", "https://github.com/acme/widget", "feature@v2"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, branch := SplitRepoRef(tt.ref)
			assert.Equal(t, tt.url, url)
			assert.Equal(t, tt.branch, branch)
		})
	}
}

func TestFetchClonesWithBranch(t *testing.T) {
	workDir := t.TempDir()
	runner := &fakeRunner{handler: func(spec Command) (*CommandResult, error) {
		require.NoError(t, os.MkdirAll(spec.Args[len(spec.Args)-1], 0750))
		return &CommandResult{}, nil
	}}

	target, err := Fetch(context.Background(), runner, "https://github.com/acme/widget.git@develop", workDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "widget"), target)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"clone", "-b", "develop", "https://github.com/acme/widget.git", target}, runner.calls[0].Args)
}

func TestFetchReusesExistingClone(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "widget"), 0750))

	runner := &fakeRunner{}
	target, err := Fetch(context.Background(), runner, "https://github.com/acme/widget.git", workDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "widget"), target)
	assert.Empty(t, runner.calls, "a present clone must not trigger a second fetch")
}

func TestFetchFailureWrapsErrFetch(t *testing.T) {
	runner := &fakeRunner{handler: func(Command) (*CommandResult, error) {
		return nil, &CommandError{Line: "git clone", Err: errors.New("exit status 128"), Stderr: "fatal: repository not found"}
	}}

	_, err := Fetch(context.Background(), runner, "https://github.com/acme/missing.git", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "fetch", stageErr.Stage)
	assert.Contains(t, stageErr.Output, "repository not found")
}

func TestExecRunnerRejectsRelativeDir(t *testing.T) {
	runner := &ExecRunner{}
	_, err := runner.Run(context.Background(), Command{Name: "true", Dir: "relative/path"})
	assert.ErrorIs(t, err, ErrInvalidWorkDir)

	_, err = runner.Run(context.Background(), Command{Name: "true"})
	assert.ErrorIs(t, err, ErrInvalidWorkDir)
}

func TestExecRunnerStageTimeout(t *testing.T) {
	runner := &ExecRunner{Timeout: 50 * time.Millisecond}

	_, err := runner.Run(context.Background(), Command{
		Name: "sleep", Args: []string{"5"}, Dir: t.TempDir(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageTimeout)
	assert.Contains(t, err.Error(), "sleep 5")
}

func TestExecRunnerCallerDeadlineIsNotStageTimeout(t *testing.T) {
	// A deadline imposed by the caller surfaces as the caller's context
	// error, not as a per-invocation timeout.
	runner := &ExecRunner{Timeout: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, Command{
		Name: "sleep", Args: []string{"5"}, Dir: t.TempDir(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStageTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouterCoversSupportedEcosystems(t *testing.T) {
	router := NewRouter(Options{Runner: &fakeRunner{}})

	for _, mgr := range []string{
		detect.ManagerPip, detect.ManagerPoetry, detect.ManagerUV,
		detect.ManagerPipenv, detect.ManagerSetuptools, detect.ManagerFlit,
		detect.ManagerPyproject,
	} {
		p, ok := router.Route(detect.LanguagePython, mgr)
		require.True(t, ok, "python manager %q should route", mgr)
		assert.Equal(t, "python", p.Name())
	}

	p, ok := router.Route(detect.LanguageGo, detect.ManagerGoModules)
	require.True(t, ok)
	assert.Equal(t, "gomod", p.Name())

	p, ok = router.Route(detect.LanguageJava, detect.ManagerMaven)
	require.True(t, ok)
	assert.Equal(t, "maven", p.Name())

	_, ok = router.Route(detect.LanguageJava, detect.ManagerGradle)
	assert.False(t, ok, "gradle is not a supported pipeline")
	_, ok = router.Route(detect.LanguageUnknown, detect.ManagerUnknown)
	assert.False(t, ok)
}

func newTestJob(t *testing.T) *JobContext {
	t.Helper()
	workDir := t.TempDir()
	job := NewJobContext("job-1", "https://github.com/acme/widget.git", workDir)
	job.RepoPath = filepath.Join(workDir, "widget")
	require.NoError(t, os.MkdirAll(job.RepoPath, 0750))
	return job
}

const (
	testTreeDoc = `{"packages":[{"name":"example.com/lib@v1.2.0","children":[]},{"name":"example.com/extra@v0.3.0","children":[]}]}`
	testSBOMDoc = `{"components":[{"name":"example.com/lib","version":"v1.2.0"},{"name":"example.com/extra","version":"v0.3.0"}]}`
)

func goHappyHandler(t *testing.T) func(Command) (*CommandResult, error) {
	return func(spec Command) (*CommandResult, error) {
		switch {
		case spec.Name == "go" && spec.Args[0] == "mod" && spec.Args[1] == "tidy":
			return &CommandResult{}, nil
		case spec.Name == "go" && spec.Args[0] == "list":
			return &CommandResult{Stdout: `{"Path":"example.com/lib","Version":"v1.2.0"}`}, nil
		case spec.Name == "go" && spec.Args[0] == "mod" && spec.Args[1] == "graph":
			return &CommandResult{Stdout: "widget example.com/lib@v1.2.0"}, nil
		case filepath.Base(spec.Name) == "deptree":
			require.Equal(t, "widget example.com/lib@v1.2.0", spec.Stdin)
			return &CommandResult{Stdout: testTreeDoc}, nil
		case spec.Name == "cyclonedx-gomod":
			writeOutputFlag(t, spec, "-output", testSBOMDoc)
			return &CommandResult{}, nil
		case spec.Name == "trivy":
			writeOutputFlag(t, spec, "-o", `{"Results":[]}`)
			return &CommandResult{}, nil
		default:
			return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
		}
	}
}

func TestGoPipelineHappyPath(t *testing.T) {
	job := newTestJob(t)
	runner := &fakeRunner{
		handler: goHappyHandler(t),
		tools:   map[string]string{"deptree": "/usr/local/bin/deptree"},
	}
	p := &GoPipeline{runner: runner}

	require.NoError(t, p.Run(context.Background(), job))

	for _, kind := range []string{
		datatypes.ArtifactDependencyTree,
		datatypes.ArtifactSBOM,
		datatypes.ArtifactSBOMCycloneDX,
		datatypes.ArtifactScanReport,
		datatypes.ArtifactScanTable,
		datatypes.ArtifactReconciliation,
	} {
		assert.Contains(t, job.ResultFiles, kind)
	}

	tree, err := os.ReadFile(job.ResultFiles[datatypes.ArtifactDependencyTree])
	require.NoError(t, err)
	assert.JSONEq(t, testTreeDoc, string(tree))

	comparison, err := os.ReadFile(job.ResultFiles[datatypes.ArtifactReconciliation])
	require.NoError(t, err)
	assert.Contains(t, string(comparison), "=== Dependencies same in both ===")
	assert.Contains(t, string(comparison), "example.com/lib@v1.2.0")

	assert.Contains(t, job.Artifacts, "upgrade_survey_path")
	assert.Contains(t, job.Results, datatypes.ArtifactReconciliation)
}

func TestGoPipelineInstallsMissingDeptree(t *testing.T) {
	job := newTestJob(t)
	installed := false
	runner := &fakeRunner{tools: map[string]string{}}
	runner.handler = func(spec Command) (*CommandResult, error) {
		if spec.Name == "go" && spec.Args[0] == "install" {
			installed = true
			return &CommandResult{}, nil
		}
		if spec.Name == "go" && spec.Args[0] == "env" {
			return &CommandResult{Stdout: "/home/worker/go\n"}, nil
		}
		return goHappyHandler(t)(spec)
	}

	require.NoError(t, (&GoPipeline{runner: runner}).Run(context.Background(), job))
	assert.True(t, installed, "deptree should be installed when absent from PATH")

	var usedInstalled bool
	for _, line := range runner.callLines() {
		if strings.HasPrefix(line, "/home/worker/go/bin/deptree") {
			usedInstalled = true
		}
	}
	assert.True(t, usedInstalled, "rendering should use the freshly installed binary")
}

func TestGoPipelineSBOMFailureAborts(t *testing.T) {
	job := newTestJob(t)
	runner := &fakeRunner{tools: map[string]string{"deptree": "/usr/local/bin/deptree"}}
	runner.handler = func(spec Command) (*CommandResult, error) {
		if spec.Name == "cyclonedx-gomod" {
			return nil, &CommandError{Line: commandLine(spec), Err: errors.New("exit status 1"), Stderr: "no go.mod found"}
		}
		return goHappyHandler(t)(spec)
	}

	err := (&GoPipeline{runner: runner}).Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSBOMGeneration)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "sbom", stageErr.Stage)
	assert.Contains(t, stageErr.Output, "no go.mod found")
}

func TestGoPipelineReconciliationDegrades(t *testing.T) {
	job := newTestJob(t)
	runner := &fakeRunner{tools: map[string]string{"deptree": "/usr/local/bin/deptree"}}
	runner.handler = func(spec Command) (*CommandResult, error) {
		if filepath.Base(spec.Name) == "deptree" {
			// Rendered output with no JSON object at all.
			return &CommandResult{Stdout: "plain text tree"}, nil
		}
		return goHappyHandler(t)(spec)
	}

	// Corrupt reconciliation input must not fail the pipeline.
	require.NoError(t, (&GoPipeline{runner: runner}).Run(context.Background(), job))

	outcome, ok := job.Artifacts[datatypes.ArtifactReconciliation].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(outcome, "unavailable:"), "got %q", outcome)
	assert.NotContains(t, job.ResultFiles, datatypes.ArtifactReconciliation)
}

func TestPythonPipelineHappyPath(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, os.WriteFile(filepath.Join(job.RepoPath, "requirements.txt"), []byte("widget-lib==1.2.0\n"), 0640))

	runner := &fakeRunner{}
	runner.handler = func(spec Command) (*CommandResult, error) {
		base := filepath.Base(spec.Name)
		switch {
		case spec.Name == "python3":
			return &CommandResult{}, nil
		case base == "pip" && spec.Args[0] == "install":
			return &CommandResult{}, nil
		case base == "pip" && spec.Args[0] == "freeze":
			return &CommandResult{Stdout: "widget-lib==1.2.0\n"}, nil
		case base == "cyclonedx-py":
			writeOutputFlag(t, spec, "-o", `{"components":[{"name":"widget-lib","version":"1.2.0"}]}`)
			return &CommandResult{}, nil
		case spec.Name == "trivy":
			writeOutputFlag(t, spec, "-o", `{"Results":[]}`)
			return &CommandResult{}, nil
		default:
			return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
		}
	}

	require.NoError(t, (&PythonPipeline{runner: runner}).Run(context.Background(), job))

	resolved, err := os.ReadFile(filepath.Join(job.WorkDir, "all-dep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "widget-lib==1.2.0\n", string(resolved))

	assert.Contains(t, job.ResultFiles, datatypes.ArtifactSBOM)
	assert.Contains(t, job.ResultFiles, datatypes.ArtifactScanReport)

	// No pre-existing manifest means reconciliation is skipped, not failed.
	assert.Equal(t, "skipped: no resolver view to compare", job.Artifacts[datatypes.ArtifactReconciliation])
}

func TestPythonPipelineReconcilesManifest(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, os.WriteFile(filepath.Join(job.RepoPath, "requirements.txt"), []byte("widget-lib==1.2.0\n"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(job.RepoPath, "dets.json"), []byte(`{"widget-lib":"1.1.0"}`), 0640))

	runner := &fakeRunner{}
	runner.handler = func(spec Command) (*CommandResult, error) {
		base := filepath.Base(spec.Name)
		switch {
		case spec.Name == "python3", base == "pip" && spec.Args[0] == "install":
			return &CommandResult{}, nil
		case base == "pip" && spec.Args[0] == "freeze":
			return &CommandResult{Stdout: "widget-lib==1.2.0\n"}, nil
		case base == "cyclonedx-py":
			writeOutputFlag(t, spec, "-o", `{"components":[{"name":"widget-lib","version":"1.2.0"}]}`)
			return &CommandResult{}, nil
		case spec.Name == "trivy":
			if contains(spec.Args, "cyclonedx") {
				writeOutputFlag(t, spec, "-o", `{"components":[{"name":"widget-lib","version":"1.2.0"}]}`)
			} else {
				writeOutputFlag(t, spec, "-o", "{}")
			}
			return &CommandResult{}, nil
		default:
			return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
		}
	}

	require.NoError(t, (&PythonPipeline{runner: runner}).Run(context.Background(), job))

	comparison, err := os.ReadFile(job.ResultFiles[datatypes.ArtifactReconciliation])
	require.NoError(t, err)
	assert.Contains(t, string(comparison), "=== Version mismatches ===")
	assert.Contains(t, string(comparison), "widget-lib (deptree: 1.1.0, sbom: 1.2.0)")
}

func TestPythonPipelineSkipsInstallWithoutManifest(t *testing.T) {
	job := newTestJob(t)

	runner := &fakeRunner{}
	runner.handler = func(spec Command) (*CommandResult, error) {
		if spec.Name == "python3" || filepath.Base(spec.Name) == "pip" {
			return &CommandResult{}, nil
		}
		return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
	}

	require.NoError(t, (&PythonPipeline{runner: runner}).Run(context.Background(), job))
	assert.Equal(t, "skipped: no declared dependency manifest", job.Artifacts["dependency_install"])
	assert.Equal(t, "skipped: no dependency listing for sbom generation", job.Artifacts[datatypes.ArtifactSBOM])
}

func TestMavenPipelinePrefersHostInstall(t *testing.T) {
	job := newTestJob(t)
	runner := &fakeRunner{tools: map[string]string{"mvn": "/usr/bin/mvn"}}
	runner.handler = func(spec Command) (*CommandResult, error) {
		switch {
		case spec.Name == "/usr/bin/mvn":
			bomDir := filepath.Join(job.RepoPath, "target")
			require.NoError(t, os.MkdirAll(bomDir, 0750))
			require.NoError(t, os.WriteFile(filepath.Join(bomDir, "bom.json"), []byte(testSBOMDoc), 0640))
			return &CommandResult{}, nil
		case spec.Name == "trivy":
			writeOutputFlag(t, spec, "-o", `{"Results":[]}`)
			return &CommandResult{}, nil
		default:
			return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
		}
	}

	p := NewMavenPipeline(runner, t.TempDir(), "", "", nil)
	require.NoError(t, p.Run(context.Background(), job))

	sbom, err := os.ReadFile(job.ResultFiles[datatypes.ArtifactSBOM])
	require.NoError(t, err)
	assert.JSONEq(t, testSBOMDoc, string(sbom))
	assert.Equal(t, "skipped: no resolver view to compare", job.Artifacts[datatypes.ArtifactReconciliation])
}

func TestMavenPipelineReusesExtractedDistribution(t *testing.T) {
	job := newTestJob(t)
	toolsDir := t.TempDir()
	mvn := filepath.Join(toolsDir, "apache-maven-3.9.9", "bin", "mvn")
	require.NoError(t, os.MkdirAll(filepath.Dir(mvn), 0750))
	require.NoError(t, os.WriteFile(mvn, []byte("#!/bin/sh\n"), 0755))

	runner := &fakeRunner{} // mvn absent from PATH
	runner.handler = func(spec Command) (*CommandResult, error) {
		switch {
		case spec.Name == mvn:
			bomDir := filepath.Join(job.RepoPath, "target")
			require.NoError(t, os.MkdirAll(bomDir, 0750))
			require.NoError(t, os.WriteFile(filepath.Join(bomDir, "bom.json"), []byte(testSBOMDoc), 0640))
			return &CommandResult{}, nil
		case spec.Name == "trivy":
			writeOutputFlag(t, spec, "-o", `{"Results":[]}`)
			return &CommandResult{}, nil
		default:
			return nil, fmt.Errorf("unscripted command: %s", commandLine(spec))
		}
	}

	p := NewMavenPipeline(runner, toolsDir, "3.9.9", "", nil)
	require.NoError(t, p.Run(context.Background(), job))
	assert.Contains(t, job.ResultFiles, datatypes.ArtifactSBOM)
}

func TestNormalizeDependencyManifestShapes(t *testing.T) {
	dir := t.TempDir()

	objPath := filepath.Join(dir, "obj.json")
	require.NoError(t, os.WriteFile(objPath, []byte(`{"pkgA":"1.0.0"}`), 0640))
	outPath := filepath.Join(dir, "out.json")
	require.NoError(t, normalizeDependencyManifest(objPath, outPath))
	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pkgA@1.0.0"`)

	listPath := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(listPath, []byte(`[{"name":"pkgB","version":"2.0.0"},{"name":"","version":"x"}]`), 0640))
	require.NoError(t, normalizeDependencyManifest(listPath, outPath))
	raw, err = os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pkgB@2.0.0"`)
	assert.NotContains(t, string(raw), `"@x"`)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("not json"), 0640))
	assert.Error(t, normalizeDependencyManifest(badPath, outPath))
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
