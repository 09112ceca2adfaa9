// Copyright (c) 2025, The Bitte Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bitte_snapshot_build_duration_seconds",
			Help:    "Time taken to build a cluster snapshot from its sources",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	snapshotBuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitte_snapshot_build_total",
			Help: "Total number of snapshot build attempts",
		},
		[]string{"status"}, // success or error
	)

	snapshotSourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitte_snapshot_source_duration_seconds",
			Help:    "Time taken by individual source fetches",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"source"}, // nomad-allocations, nomad-nodes, declared-state/<ws>, inventory/<region>
	)

	snapshotNodeCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitte_snapshot_nodes",
			Help: "Number of nodes in the last built snapshot",
		},
	)

	snapshotCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitte_snapshot_cache_total",
			Help: "Snapshot cache lookups by result",
		},
		[]string{"result"}, // hit, miss, expired, corrupt
	)
)
