/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vexogate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vexogate",
			Subsystem: "settlement",
			Name:      "batch_orders_total",
			Help:      "Orders handled by settlement batches, by outcome",
		},
		[]string{"outcome"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vexogate",
			Subsystem: "settlement",
			Name:      "transitions_total",
			Help:      "Persisted order status transitions",
		},
		[]string{"from", "to"},
	)

	chainSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vexogate",
			Subsystem: "chain",
			Name:      "sends_total",
			Help:      "Transactions broadcast by the engine, by leg and result",
		},
		[]string{"leg", "result"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vexogate",
			Subsystem: "settlement",
			Name:      "batch_duration_seconds",
			Help:      "Duration of settlement batches",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

func (r BatchResult) observe() {
	batchOrders.WithLabelValues("advanced").Add(float64(r.Advanced))
	batchOrders.WithLabelValues("escalated").Add(float64(r.Escalated))
	batchOrders.WithLabelValues("skipped").Add(float64(r.Skipped))
	batchOrders.WithLabelValues("failed").Add(float64(r.Failed))
	batchOrders.WithLabelValues("idle").Add(float64(r.Processed - r.Advanced - r.Escalated - r.Skipped - r.Failed))
}

func sendResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
