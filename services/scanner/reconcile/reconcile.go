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

// Pinned is a dependency name with a single resolved version.
type Pinned struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Mismatch is a dependency present in both views at different versions.
type Mismatch struct {
	Name        string `json:"name"`
	TreeVersion string `json:"tree_version"`
	SBOMVersion string `json:"sbom_version"`
}

// Result classifies every dependency of both views into exactly one
// category. The four slices partition (tree ∖ sbom) ∪ (tree ∩ sbom) ∪
// (sbom ∖ tree): no name is dropped or double-classified.
type Result struct {
	MissingInSBOM   []Pinned   `json:"missing_in_sbom"`
	VersionMismatch []Mismatch `json:"version_mismatch"`
	Same            []Pinned   `json:"same"`
	ExtraInSBOM     []Pinned   `json:"extra_in_sbom"`
}

// Reconcile diffs the resolver view against the SBOM view.
//
// Pure and deterministic: a single pass over the tree populates
// MissingInSBOM, VersionMismatch and Same by probing the SBOM, then a
// single pass over the SBOM populates ExtraInSBOM by probing the tree.
// Output ordering is the insertion order of the respective pass.
func Reconcile(tree, sbom *DependencySet) Result {
	res := Result{
		MissingInSBOM:   make([]Pinned, 0),
		VersionMismatch: make([]Mismatch, 0),
		Same:            make([]Pinned, 0),
		ExtraInSBOM:     make([]Pinned, 0),
	}

	for _, name := range tree.Names() {
		treeVer, _ := tree.Get(name)
		sbomVer, ok := sbom.Get(name)
		switch {
		case !ok:
			res.MissingInSBOM = append(res.MissingInSBOM, Pinned{Name: name, Version: treeVer})
		case sbomVer != treeVer:
			res.VersionMismatch = append(res.VersionMismatch, Mismatch{
				Name:        name,
				TreeVersion: treeVer,
				SBOMVersion: sbomVer,
			})
		default:
			res.Same = append(res.Same, Pinned{Name: name, Version: treeVer})
		}
	}

	for _, name := range sbom.Names() {
		if _, ok := tree.Get(name); !ok {
			ver, _ := sbom.Get(name)
			res.ExtraInSBOM = append(res.ExtraInSBOM, Pinned{Name: name, Version: ver})
		}
	}

	return res
}
