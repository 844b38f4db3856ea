// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "construct",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Requests handled, by route and status code.",
	}, []string{"route", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "construct",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// Labels: source (upload, gcs)
	importedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "construct",
		Subsystem: "import",
		Name:      "records_total",
		Help:      "GenBank records imported.",
	}, []string{"source"})

	placementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "construct",
		Subsystem: "import",
		Name:      "placement_failures_total",
		Help:      "Imported features that could not be placed in a design.",
	})

	// Labels: format (genbank, zip)
	exportedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "construct",
		Subsystem: "export",
		Name:      "files_total",
		Help:      "Files produced by exports.",
	}, []string{"format"})
)

// instrument records the outcome of every request routed by gin.
func instrument(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
