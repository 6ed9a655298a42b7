// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package promstat implements hstore.Statter with Prometheus collectors.
// Every stat becomes a series labelled with its name, under one metric per
// stat kind.
package promstat

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric unless another one is given.
const DefaultNamespace = "hstore"

// Statter is an hstore.Statter backed by its own Prometheus registry.
type Statter struct {
	registry *prometheus.Registry
	counts   *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
	values   *prometheus.HistogramVec
	timings  *prometheus.HistogramVec
	sets     *prometheus.GaugeVec
}

// New creates a Statter whose metrics are prefixed with namespace.
func New(namespace string) *Statter {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := &Statter{
		registry: prometheus.NewRegistry(),
		counts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Number of recorder events, by name.",
			},
			[]string{"name"},
		),
		gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gauge",
				Help:      "Current value of recorder gauges, by name.",
			},
			[]string{"name"},
		),
		values: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "value",
				Help:      "Distribution of recorder values, by name.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"name"},
		),
		timings: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "duration_seconds",
				Help:      "Duration of recorder operations, by name.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"name"},
		),
		sets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "set",
				Help:      "Values seen per set, by name.",
			},
			[]string{"name", "value"},
		),
	}
	s.registry.MustRegister(s.counts, s.gauges, s.values, s.timings, s.sets)
	return s
}

// Registry returns the registry holding the Statter's collectors, so that
// other collectors can be added to it.
func (s *Statter) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Statter) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Count adds value to the named counter. Prometheus counters only go up, so
// negative values are dropped. The rate is ignored.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	if value < 0 {
		return
	}
	s.counts.WithLabelValues(name).Add(float64(value))
}

// Gauge sets the named gauge.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	s.gauges.WithLabelValues(name).Set(value)
}

// Histogram observes value in the named histogram.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	s.values.WithLabelValues(name).Observe(value)
}

// Set marks value as seen in the named set.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {
	s.sets.WithLabelValues(name, value).Set(1)
}

// Timing observes value, in seconds, in the named duration histogram.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.timings.WithLabelValues(name).Observe(value.Seconds())
}
