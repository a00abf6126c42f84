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
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SplitRepoRef splits a "url[@branch]" reference at the first '@'. The
// submit contract uses https-style URLs, so the first '@' is the branch
// separator.
func SplitRepoRef(ref string) (url, branch string) {
	if i := strings.Index(ref, "@"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// repoDirName derives the clone directory name from a repository URL.
func repoDirName(url string) string {
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(url, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// Fetch clones the referenced repository into workDir and returns the
// absolute clone path. An already-present clone is reused. Failures wrap
// ErrFetch.
func Fetch(ctx context.Context, runner Runner, ref, workDir string) (string, error) {
	url, branch := SplitRepoRef(ref)
	target := filepath.Join(workDir, repoDirName(url))

	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	args := []string{"clone"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, url, target)

	if _, err := runner.Run(ctx, Command{Name: "git", Args: args, Dir: workDir}); err != nil {
		return "", stageFail("fetch", ErrFetch, err)
	}
	return target, nil
}
