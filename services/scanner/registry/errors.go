// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import "errors"

// Sentinel errors for the registry package. These surface synchronously to
// the submitting, polling or deleting caller and are never deferred into
// the background job.
var (
	// ErrConflict is returned when a submitted id already has an active job.
	ErrConflict = errors.New("job id already active")

	// ErrNotFound is returned when an id is unknown in both memory and the
	// durable store.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState is returned when deleting a pending or running job.
	ErrInvalidState = errors.New("job is still active")

	// ErrInvalidTransition is returned when a worker reports a status
	// change that the lifecycle does not allow.
	ErrInvalidTransition = errors.New("illegal status transition")
)
