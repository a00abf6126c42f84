// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sbomscan/services/scanner/reconcile"
)

// runCompare diffs a dependency tree against an SBOM without involving
// the service, for offline inspection of existing artifacts.
func runCompare(cmd *cobra.Command, args []string) {
	treePath, sbomPath := args[0], args[1]

	tree, err := reconcile.LoadDependencyTree(treePath)
	if err != nil {
		log.Fatalf("Failed to load dependency tree %s: %v", treePath, err)
	}
	sbom, err := reconcile.LoadSBOM(sbomPath)
	if err != nil {
		log.Fatalf("Failed to load SBOM %s: %v", sbomPath, err)
	}

	result := reconcile.Reconcile(tree, sbom)
	fmt.Print(reconcile.Render(result))
}
