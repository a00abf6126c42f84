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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve": false, "scan": false, "status": false,
		"delete": false, "compare": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "subcommand %s not registered", name)
	}
}

func TestPollJobParsesServerResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/report", r.URL.Path)
		switch r.URL.Query().Get("id") {
		case "job-done":
			_ = json.NewEncoder(w).Encode(datatypes.ScanStatus{
				ID:       "job-done",
				Status:   datatypes.StatusCompleted,
				Language: "Go",
				Report:   &datatypes.Report{Repo: "https://github.com/acme/widget.git"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	old := viper.GetString("server_url")
	viper.Set("server_url", srv.URL)
	defer viper.Set("server_url", old)

	status, err := pollJob("job-done")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, status.Status)
	assert.Equal(t, "Go", status.Language)
	require.NotNil(t, status.Report)

	_, err = pollJob("job-missing")
	assert.ErrorContains(t, err, "no job with id")
}
