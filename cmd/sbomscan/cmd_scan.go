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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func runScan(cmd *cobra.Command, args []string) {
	ref := args[0]
	if branchName != "" {
		ref = ref + "@" + branchName
	}

	id := jobID
	if id == "" {
		id = uuid.NewString()
	}

	body, err := json.Marshal(datatypes.ScanRequest{ID: id, GitURL: ref})
	if err != nil {
		log.Fatalf("Failed to encode scan request: %v", err)
	}

	resp, err := httpClient.Post(serverURL()+"/v1/scan", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("Failed to reach the scanner service: %v", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Printf("Submitted job %s for %s\n", id, ref)
	case http.StatusConflict:
		log.Fatalf("A job with id %s is already in progress", id)
	default:
		log.Fatalf("Submission rejected (%d): %s", resp.StatusCode, payload)
	}

	if !waitFlag {
		fmt.Printf("Poll with: sbomscan status %s\n", id)
		return
	}

	for {
		time.Sleep(2 * time.Second)
		status, err := pollJob(id)
		if err != nil {
			log.Fatalf("Polling failed: %v", err)
		}
		if status.Status.Terminal() {
			printStatus(status)
			return
		}
		fmt.Printf("Job %s is %s...\n", id, status.Status)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	status, err := pollJob(args[0])
	if err != nil {
		log.Fatalf("Polling failed: %v", err)
	}
	printStatus(status)
}

func runDelete(cmd *cobra.Command, args []string) {
	id := args[0]
	req, err := http.NewRequest(http.MethodDelete, serverURL()+"/v1/job/"+url.PathEscape(id), nil)
	if err != nil {
		log.Fatalf("Failed to build delete request: %v", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the scanner service: %v", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("Deleted job %s\n", id)
	case http.StatusNotFound:
		log.Fatalf("No job with id %s", id)
	case http.StatusBadRequest:
		log.Fatalf("Job %s is still in progress and cannot be deleted", id)
	default:
		log.Fatalf("Deletion rejected (%d): %s", resp.StatusCode, payload)
	}
}

func pollJob(id string) (*datatypes.ScanStatus, error) {
	resp, err := httpClient.Get(serverURL() + "/v1/report?id=" + url.QueryEscape(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no job with id %s", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll rejected (%d): %s", resp.StatusCode, payload)
	}

	var status datatypes.ScanStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("malformed poll response: %w", err)
	}
	return &status, nil
}

func printStatus(status *datatypes.ScanStatus) {
	fmt.Printf("Job:    %s\n", status.ID)
	fmt.Printf("Status: %s\n", status.Status)
	if status.Language != "" {
		fmt.Printf("Stack:  %s (%s)\n", status.Language, status.DependencyManager)
	}
	if status.Error != "" {
		fmt.Printf("Error:\n%s\n", status.Error)
	}
	if status.Report != nil {
		pretty, err := json.MarshalIndent(status.Report, "", "  ")
		if err == nil {
			fmt.Printf("Report:\n%s\n", pretty)
		}
	}
}
