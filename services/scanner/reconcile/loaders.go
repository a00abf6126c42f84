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
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// treePackage is one node of the resolver dependency tree. Name and every
// child are "name@version" identifiers.
type treePackage struct {
	Name     string   `json:"name"`
	Children []string `json:"children"`
}

// LoadDependencyTree parses resolver tree output (deptree -json style) into
// a DependencySet.
//
// The tree tool sometimes prefixes its JSON with log lines, so parsing
// starts at the first '{'. The document must carry a top-level "packages"
// key. Every package node and every one of its children contributes a
// name -> version pair; on duplicate names the last occurrence wins.
//
// Errors:
//
//	ErrEmptyInput - the file is empty or whitespace only
//	ErrMalformedInput - no JSON object, invalid JSON, or missing "packages"
func LoadDependencyTree(path string) (*DependencySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dependency tree: %w", err)
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}

	// Keep only from the first structural opening token.
	idx := strings.Index(content, "{")
	if idx < 0 {
		return nil, fmt.Errorf("%w: no JSON object found in %s", ErrMalformedInput, path)
	}
	content = content[idx:]

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in %s: %v", ErrMalformedInput, path, err)
	}

	rawPackages, ok := doc["packages"]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no top-level \"packages\" key", ErrMalformedInput, path)
	}

	var packages []treePackage
	if err := json.Unmarshal(rawPackages, &packages); err != nil {
		return nil, fmt.Errorf("%w: unexpected \"packages\" shape in %s: %v", ErrMalformedInput, path, err)
	}

	set := NewDependencySet()
	for _, pkg := range packages {
		addIdentifier(set, pkg.Name)
		for _, child := range pkg.Children {
			addIdentifier(set, child)
		}
	}
	return set, nil
}

// addIdentifier splits a "name@version" identifier on its last '@' and
// records the pair. Identifiers without a version are skipped.
func addIdentifier(set *DependencySet, ident string) {
	i := strings.LastIndex(ident, "@")
	if i <= 0 {
		return
	}
	set.Set(ident[:i], ident[i+1:])
}

// sbomDocument is the subset of a CycloneDX SBOM the loader cares about.
type sbomDocument struct {
	Components []sbomComponent `json:"components"`
}

type sbomComponent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// LoadSBOM parses a flat CycloneDX-style component list into a
// DependencySet. Components missing a name or a version are skipped; a
// document without a components list yields an empty set.
//
// Errors:
//
//	ErrEmptyInput - the file is empty or whitespace only
//	ErrMalformedInput - invalid JSON
func LoadSBOM(path string) (*DependencySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sbom: %w", err)
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}

	var doc sbomDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in %s: %v", ErrMalformedInput, path, err)
	}

	set := NewDependencySet()
	for _, comp := range doc.Components {
		if comp.Name == "" || comp.Version == "" {
			continue
		}
		set.Set(comp.Name, comp.Version)
	}
	return set, nil
}
