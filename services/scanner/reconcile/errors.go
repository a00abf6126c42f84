// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import "errors"

// Sentinel errors for the reconcile package.
//
// Callers need to tell "nothing to compare" apart from "corrupt data", so
// an empty input file is a distinct error from unparseable content.
var (
	// ErrEmptyInput is returned when an input file is empty or whitespace.
	ErrEmptyInput = errors.New("input file is empty")

	// ErrMalformedInput is returned when non-empty input cannot be parsed.
	ErrMalformedInput = errors.New("malformed input")
)
