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

// DeleteJob removes a terminal job together with its durable records. An
// active job cannot be deleted; cancellation is not part of the contract.
func DeleteJob(svc ScanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		slog.Info("Received a request to delete a job", "id", id)

		err := svc.Delete(id)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no job with this id", "id": id})
		case errors.Is(err, registry.ErrInvalidState):
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "job is still in progress and cannot be deleted", "id": id})
		case err != nil:
			slog.Error("job deletion failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete job"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_job_id": id})
		}
	}
}
