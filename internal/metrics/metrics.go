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

package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Sink records counters, histograms and gauges. Tags become prometheus labels.
type Sink interface {
	Increment(name string, tags map[string]string)
	Histogram(name string, value float64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
}

// PrometheusSink creates metric vectors lazily, keyed by name and label set.
type PrometheusSink struct {
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

func NewPrometheusSink(registry *prometheus.Registry) *PrometheusSink {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &PrometheusSink{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func vecKey(name string, labels []string) string {
	return name + "|" + strings.Join(labels, ",")
}

func (s *PrometheusSink) register(c prometheus.Collector, name string) {
	if err := s.registry.Register(c); err != nil {
		logrus.WithError(err).WithField("metric", name).Warn("failed to register metric")
	}
}

func (s *PrometheusSink) Increment(name string, tags map[string]string) {
	labels := labelNames(tags)
	key := vecKey(name, labels)

	s.mu.Lock()
	vec, ok := s.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labels)
		s.counters[key] = vec
		s.register(vec, name)
	}
	s.mu.Unlock()

	c, err := vec.GetMetricWith(tags)
	if err != nil {
		logrus.WithError(err).WithField("metric", name).Warn("invalid metric labels")
		return
	}
	c.Inc()
}

func (s *PrometheusSink) Histogram(name string, value float64, tags map[string]string) {
	labels := labelNames(tags)
	key := vecKey(name, labels)

	s.mu.Lock()
	vec, ok := s.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: name, Buckets: prometheus.ExponentialBuckets(1, 4, 12)}, labels)
		s.histograms[key] = vec
		s.register(vec, name)
	}
	s.mu.Unlock()

	h, err := vec.GetMetricWith(tags)
	if err != nil {
		logrus.WithError(err).WithField("metric", name).Warn("invalid metric labels")
		return
	}
	h.Observe(value)
}

func (s *PrometheusSink) Gauge(name string, value float64, tags map[string]string) {
	labels := labelNames(tags)
	key := vecKey(name, labels)

	s.mu.Lock()
	vec, ok := s.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labels)
		s.gauges[key] = vec
		s.register(vec, name)
	}
	s.mu.Unlock()

	g, err := vec.GetMetricWith(tags)
	if err != nil {
		logrus.WithError(err).WithField("metric", name).Warn("invalid metric labels")
		return
	}
	g.Set(value)
}

// Handler exposes the sink's registry for scraping.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Noop discards everything.
type Noop struct{}

func (Noop) Increment(string, map[string]string) {}
func (Noop) Histogram(string, float64, map[string]string) {}
func (Noop) Gauge(string, float64, map[string]string) {}
