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

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
	"github.com/AleutianAI/sbomscan/services/scanner/registry"
)

// ScanService is the coordinator surface the HTTP layer depends on.
type ScanService interface {
	Submit(req datatypes.ScanRequest) (*datatypes.Job, error)
	Poll(id string) (*datatypes.ScanStatus, error)
	Delete(id string) error
}

// SubmitScan accepts a scan request and admits it for background
// execution. The response is 202: the work has not happened yet and the
// caller polls for the outcome.
func SubmitScan(svc ScanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("rejecting malformed scan request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "id and git_url are required"})
			return
		}

		job, err := svc.Submit(req)
		if errors.Is(err, registry.ErrConflict) {
			c.JSON(http.StatusConflict,
				gin.H{"error": "a job with this id is already in progress", "id": req.ID})
			return
		}
		if err != nil {
			slog.Error("scan submission failed", "id", req.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to admit scan job"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status})
	}
}
