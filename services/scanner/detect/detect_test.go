// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	}
	return root
}

func TestLanguage_MajorityWins(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.py":        "",
		"b.py":        "",
		"pkg/c.py":    "",
		"main.go":     "",
		"sub/util.go": "",
	})

	assert.Equal(t, LanguagePython, Language(root))
}

func TestLanguage_NoSourceFiles(t *testing.T) {
	root := makeTree(t, map[string]string{
		"README.md": "# hello",
		"data.csv":  "a,b",
	})

	assert.Equal(t, LanguageUnknown, Language(root))
}

func TestLanguage_NestedFilesCounted(t *testing.T) {
	root := makeTree(t, map[string]string{
		"src/main/java/App.java":   "",
		"src/main/java/Other.java": "",
		"script.py":                "",
	})

	assert.Equal(t, LanguageJava, Language(root))
}

func TestManager_Python(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"poetry lock beats requirements", map[string]string{
			"poetry.lock":      "",
			"requirements.txt": "",
		}, ManagerPoetry},
		{"uv lock", map[string]string{"uv.lock": ""}, ManagerUV},
		{"pipenv lock", map[string]string{"Pipfile.lock": ""}, ManagerPipenv},
		{"requirements", map[string]string{"requirements.txt": "requests"}, ManagerPip},
		{"pipfile without lock", map[string]string{"Pipfile": ""}, ManagerPipenv},
		{"setup.py", map[string]string{"setup.py": ""}, ManagerSetuptools},
		{"nested requirements", map[string]string{"backend/requirements.txt": ""}, ManagerPip},
		{"nothing", map[string]string{"main.py": ""}, ManagerUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := makeTree(t, tc.files)
			assert.Equal(t, tc.want, Manager(root, LanguagePython))
		})
	}
}

func TestManager_PyprojectToolTable(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"poetry", "[tool.poetry]\nname = \"demo\"\n", ManagerPoetry},
		{"uv", "[tool.uv]\n", ManagerUV},
		{"flit", "[tool.flit]\n", ManagerFlit},
		{"plain", "[project]\nname = \"demo\"\n", ManagerPyproject},
		{"unparseable", "not toml at all [[", ManagerPyproject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := makeTree(t, map[string]string{"pyproject.toml": tc.content})
			assert.Equal(t, tc.want, Manager(root, LanguagePython))
		})
	}
}

func TestManager_JavaAndGo(t *testing.T) {
	maven := makeTree(t, map[string]string{"pom.xml": "<project/>"})
	assert.Equal(t, ManagerMaven, Manager(maven, LanguageJava))

	gradle := makeTree(t, map[string]string{"app/build.gradle": ""})
	assert.Equal(t, ManagerGradle, Manager(gradle, LanguageJava))

	gomod := makeTree(t, map[string]string{"go.mod": "module demo"})
	assert.Equal(t, ManagerGoModules, Manager(gomod, LanguageGo))

	bare := makeTree(t, map[string]string{"main.go": ""})
	assert.Equal(t, ManagerUnknown, Manager(bare, LanguageGo))
}

func TestManager_UnknownLanguage(t *testing.T) {
	root := makeTree(t, map[string]string{"README.md": ""})
	assert.Equal(t, ManagerUnknown, Manager(root, LanguageUnknown))
}
