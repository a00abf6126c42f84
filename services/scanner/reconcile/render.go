// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"fmt"
	"os"
	"strings"
)

// Render formats a Result as the human-readable comparison report. Pure
// formatting over the classification; empty sections print "None".
func Render(res Result) string {
	var b strings.Builder

	b.WriteString("=== Dependencies missing in SBOM ===\n")
	if len(res.MissingInSBOM) == 0 {
		b.WriteString("None\n")
	}
	for _, p := range res.MissingInSBOM {
		fmt.Fprintf(&b, "%s@%s\n", p.Name, p.Version)
	}

	b.WriteString("\n=== Version mismatches ===\n")
	if len(res.VersionMismatch) == 0 {
		b.WriteString("None\n")
	}
	for _, m := range res.VersionMismatch {
		fmt.Fprintf(&b, "%s (deptree: %s, sbom: %s)\n", m.Name, m.TreeVersion, m.SBOMVersion)
	}

	b.WriteString("\n=== Dependencies same in both ===\n")
	if len(res.Same) == 0 {
		b.WriteString("None\n")
	}
	for _, p := range res.Same {
		fmt.Fprintf(&b, "%s@%s\n", p.Name, p.Version)
	}

	b.WriteString("\n=== Extra dependencies in SBOM (not in deptree) ===\n")
	if len(res.ExtraInSBOM) == 0 {
		b.WriteString("None\n")
	}
	for _, p := range res.ExtraInSBOM {
		fmt.Fprintf(&b, "%s@%s\n", p.Name, p.Version)
	}

	return b.String()
}

// GenerateComparison loads both views, reconciles them and writes the
// rendered report to outputPath. Loader errors propagate unchanged so the
// caller can distinguish empty from malformed inputs.
func GenerateComparison(treePath, sbomPath, outputPath string) (Result, error) {
	tree, err := LoadDependencyTree(treePath)
	if err != nil {
		return Result{}, err
	}
	sbom, err := LoadSBOM(sbomPath)
	if err != nil {
		return Result{}, err
	}

	res := Reconcile(tree, sbom)
	if err := os.WriteFile(outputPath, []byte(Render(res)), 0640); err != nil {
		return Result{}, fmt.Errorf("writing comparison report: %w", err)
	}
	return res, nil
}
