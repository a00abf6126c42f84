// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect identifies the main language and dependency manager of a
// checked-out repository. Both functions are pure with respect to the tree
// contents: same files, same answer.
package detect

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Detected languages.
const (
	LanguagePython  = "Python"
	LanguageJava    = "Java"
	LanguageGo      = "Go"
	LanguageUnknown = "Unknown"
)

// Detected dependency managers.
const (
	ManagerPip        = "pip"
	ManagerPoetry     = "poetry"
	ManagerUV         = "uv"
	ManagerPipenv     = "pipenv"
	ManagerSetuptools = "setuptools"
	ManagerFlit       = "flit"
	ManagerPyproject  = "pyproject"
	ManagerMaven      = "maven"
	ManagerGradle     = "gradle"
	ManagerGoModules  = "go modules"
	ManagerUnknown    = "Unknown"
)

var languageExtensions = map[string][]string{
	LanguagePython: {".py"},
	LanguageJava:   {".java"},
	LanguageGo:     {".go"},
}

// Language walks the repository and picks the language with the most
// matching source files. Unknown when no source file matches at all.
func Language(root string) string {
	counts := map[string]int{
		LanguagePython: 0,
		LanguageJava:   0,
		LanguageGo:     0,
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for lang, exts := range languageExtensions {
			for _, ext := range exts {
				if strings.HasSuffix(d.Name(), ext) {
					counts[lang]++
				}
			}
		}
		return nil
	})

	best, bestCount := LanguageUnknown, 0
	// Fixed probe order keeps ties deterministic.
	for _, lang := range []string{LanguagePython, LanguageJava, LanguageGo} {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}

// Manager detects the dependency manager for a repository of the given
// language by searching every directory for marker files. Within a
// directory lock files take priority over config files.
func Manager(root, language string) string {
	switch language {
	case LanguagePython:
		return pythonManager(root)
	case LanguageJava:
		return javaManager(root)
	case LanguageGo:
		return goManager(root)
	default:
		return ManagerUnknown
	}
}

func pythonManager(root string) string {
	manager := ManagerUnknown
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		names, err := lowerNames(path)
		if err != nil {
			return nil
		}

		switch {
		case names["poetry.lock"]:
			manager = ManagerPoetry
		case names["uv.lock"]:
			manager = ManagerUV
		case names["pipfile.lock"]:
			manager = ManagerPipenv
		case names["requirements.txt"]:
			manager = ManagerPip
		case names["pipfile"]:
			manager = ManagerPipenv
		case names["setup.py"]:
			manager = ManagerSetuptools
		case names["pyproject.toml"]:
			manager = pyprojectManager(filepath.Join(path, "pyproject.toml"))
		}
		if manager != ManagerUnknown {
			return filepath.SkipAll
		}
		return nil
	})
	return manager
}

// pyprojectManager inspects the [tool] table of a pyproject.toml.
func pyprojectManager(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ManagerPyproject
	}

	var doc struct {
		Tool map[string]any `toml:"tool"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return ManagerPyproject
	}

	switch {
	case doc.Tool["poetry"] != nil:
		return ManagerPoetry
	case doc.Tool["uv"] != nil:
		return ManagerUV
	case doc.Tool["flit"] != nil:
		return ManagerFlit
	default:
		return ManagerPyproject
	}
}

func javaManager(root string) string {
	manager := ManagerUnknown
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch d.Name() {
		case "pom.xml":
			manager = ManagerMaven
			return filepath.SkipAll
		case "build.gradle":
			manager = ManagerGradle
			return filepath.SkipAll
		}
		return nil
	})
	return manager
}

func goManager(root string) string {
	manager := ManagerUnknown
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == "go.mod" {
			manager = ManagerGoModules
			return filepath.SkipAll
		}
		return nil
	})
	return manager
}

// lowerNames returns the lower-cased file names directly inside dir.
func lowerNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[strings.ToLower(e.Name())] = true
		}
	}
	return names, nil
}
