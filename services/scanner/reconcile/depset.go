// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile diffs two independently derived dependency views — a
// resolver dependency tree and an SBOM component list — into missing,
// mismatched, same and extra categories.
package reconcile

// DependencySet is a normalized name -> resolved version mapping.
//
// Names are case-sensitive. Duplicate inserts overwrite the version but
// keep the original insertion position, so iteration order is the order in
// which names were first seen (last write wins on the version).
type DependencySet struct {
	versions map[string]string
	names    []string
}

// NewDependencySet returns an empty set.
func NewDependencySet() *DependencySet {
	return &DependencySet{versions: make(map[string]string)}
}

// Set records a name -> version pair, overwriting any prior version.
func (s *DependencySet) Set(name, version string) {
	if name == "" {
		return
	}
	if _, seen := s.versions[name]; !seen {
		s.names = append(s.names, name)
	}
	s.versions[name] = version
}

// Get returns the version for name and whether it is present.
func (s *DependencySet) Get(name string) (string, bool) {
	v, ok := s.versions[name]
	return v, ok
}

// Len returns the number of distinct names.
func (s *DependencySet) Len() int {
	return len(s.names)
}

// Names returns the names in insertion order. The slice is a copy.
func (s *DependencySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
