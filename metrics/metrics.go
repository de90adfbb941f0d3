/***************************************************************
 *
 * Copyright (C) 2025, OpenAddresses
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EdgeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lazymigrate_edge_cache_hits_total",
		Help: "Requests answered verbatim from the edge response cache",
	})

	PrimaryHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lazymigrate_primary_hits_total",
		Help: "Requests served from the primary store",
	})

	PrimaryMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lazymigrate_primary_misses_total",
		Help: "Requests that fell through to the origin store",
	})

	OriginFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lazymigrate_origin_fetches_total",
		Help: "Origin fetch attempts by outcome",
	}, []string{"outcome"})

	WriteBacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lazymigrate_write_backs_total",
		Help: "Detached primary-store write-backs by outcome",
	}, []string{"outcome"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lazymigrate_rate_limited_total",
		Help: "Requests rejected by the per-fingerprint usage limiter",
	})
)
