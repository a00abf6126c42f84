// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stageDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sbomscan",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each pipeline stage, by ecosystem.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	},
	[]string{"ecosystem", "stage"},
)

// observeStage records a stage duration sample.
func observeStage(ecosystem, stage string, start time.Time) {
	stageDuration.WithLabelValues(ecosystem, stage).Observe(time.Since(start).Seconds())
}
