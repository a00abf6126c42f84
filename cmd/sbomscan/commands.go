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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// --- Global Command Variables ---
var (
	jobID      string
	branchName string
	waitFlag   bool

	rootCmd = &cobra.Command{
		Use:   "sbomscan",
		Short: "A cli for the sbomscan SBOM generation and vulnerability scan service",
		Long: `sbomscan submits repositories to the scanner service, polls scan
jobs for their reports, and compares dependency views locally.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner service in the foreground",
		Run:   runServe, // Defined in cmd_serve.go
	}

	scanCmd = &cobra.Command{
		Use:   "scan [git-url[@branch]]",
		Short: "Submit a repository for SBOM generation and vulnerability scanning",
		Args:  cobra.ExactArgs(1),
		Run:   runScan, // Defined in cmd_scan.go
	}

	statusCmd = &cobra.Command{
		Use:   "status [job-id]",
		Short: "Poll a scan job and print its status or report",
		Args:  cobra.ExactArgs(1),
		Run:   runStatus, // Defined in cmd_scan.go
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [job-id]",
		Short: "Delete a finished scan job and its stored report",
		Args:  cobra.ExactArgs(1),
		Run:   runDelete, // Defined in cmd_scan.go
	}

	compareCmd = &cobra.Command{
		Use:   "compare [dependency-tree.json] [sbom.json]",
		Short: "Compare a resolver dependency tree against an SBOM locally",
		Args:  cobra.ExactArgs(2),
		Run:   runCompare, // Defined in cmd_compare.go
	}
)

func init() {
	viper.SetDefault("server_url", "http://localhost:12310")
	viper.SetEnvPrefix("SBOMSCAN")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("server", "", "scanner service base URL")
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))

	scanCmd.Flags().StringVar(&jobID, "id", "", "job id (defaults to a generated UUID)")
	scanCmd.Flags().StringVarP(&branchName, "branch", "b", "", "branch to scan")
	scanCmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "poll until the job reaches a terminal state")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(compareCmd)
}

func serverURL() string {
	return viper.GetString("server_url")
}
