// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/sbomscan/services/scanner/registry"
)

// GetReport polls the state of a job by its id query parameter. Completed
// jobs carry the aggregated report, failed jobs the full error trace.
func GetReport(svc ScanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'id' is required"})
			return
		}

		status, err := svc.Poll(id)
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no job with this id", "id": id})
			return
		}
		if err != nil {
			slog.Error("job poll failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to poll job"})
			return
		}

		c.JSON(http.StatusOK, status)
	}
}
