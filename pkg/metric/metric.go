// Copyright 2026 The gVisor Authors.
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

// Package metric provides primitives for collecting metrics.
package metric

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"gvisor.dev/vmcore/pkg/sync"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that the metric name does not follow the
	// "/component/metric" convention.
	ErrInvalidName = errors.New("metric name must start with '/' and contain only [a-z0-9_/]")
)

// Kind is the kind of a metric.
type Kind int

const (
	// Cumulative metrics only ever increase.
	Cumulative Kind = iota

	// Gauge metrics may go up and down.
	Gauge
)

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
type Uint64Metric struct {
	name        string
	description string
	kind        Kind
	value       atomic.Uint64
}

// metricSet holds every registered metric, keyed by name.
type metricSet struct {
	mu sync.Mutex
	m  map[string]*Uint64Metric
}

// allMetrics are the registered metrics.
var allMetrics = metricSet{m: make(map[string]*Uint64Metric)}

func validName(name string) bool {
	if len(name) < 2 || name[0] != '/' {
		return false
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '/') {
			return false
		}
	}
	return true
}

func register(name, description string, kind Kind) (*Uint64Metric, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if _, ok := allMetrics.m[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNameInUse)
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		kind:        kind,
	}
	allMetrics.m[name] = m
	return m, nil
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
func NewUint64Metric(name, description string) (*Uint64Metric, error) {
	return register(name, description, Cumulative)
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name, description string) *Uint64Metric {
	m, err := NewUint64Metric(name, description)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// MustCreateNewUint64Gauge registers a gauge and panics on failure.
func MustCreateNewUint64Gauge(name, description string) *Uint64Metric {
	m, err := register(name, description, Gauge)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Name returns the registered name of the metric.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value of the metric.
func (m *Uint64Metric) Value() uint64 {
	return m.value.Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment() {
	m.value.Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64) {
	m.value.Add(v)
}

// Decrement decrements a gauge by 1.
//
// Precondition: m is a Gauge.
func (m *Uint64Metric) Decrement() {
	if m.kind != Gauge {
		panic(fmt.Sprintf("Decrement on cumulative metric %q", m.name))
	}
	m.value.Add(^uint64(0))
}

// Set sets a gauge to v.
//
// Precondition: m is a Gauge.
func (m *Uint64Metric) Set(v uint64) {
	if m.kind != Gauge {
		panic(fmt.Sprintf("Set on cumulative metric %q", m.name))
	}
	m.value.Store(v)
}

// Snapshot returns the current value of every registered metric.
func Snapshot() map[string]uint64 {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	s := make(map[string]uint64, len(allMetrics.m))
	for name, m := range allMetrics.m {
		s[name] = m.Value()
	}
	return s
}

// promName converts "/vm/page_faults" into "vm_page_faults".
func promName(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format, documented at
// https://prometheus.io/docs/instrumenting/exposition_formats/. Metric names
// are prefixed with prefix.
func WritePrometheus(w io.Writer, prefix string) error {
	allMetrics.mu.Lock()
	metrics := make([]*Uint64Metric, 0, len(allMetrics.m))
	for _, m := range allMetrics.m {
		metrics = append(metrics, m)
	}
	allMetrics.mu.Unlock()
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	for _, m := range metrics {
		name := promName(prefix, m.name)
		typ := "counter"
		if m.kind == Gauge {
			typ = "gauge"
		}
		if m.description != "" {
			// Prometheus metric description escape rules: Only backslashes and line breaks need escaping.
			help := strings.ReplaceAll(strings.ReplaceAll(m.description, "\\", "\\\\"), "\n", "\\n")
			if _, err := fmt.Fprintf(w, "# HELP %s %s\n", name, help); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# TYPE %s %s\n%s %d\n", name, typ, name, m.Value()); err != nil {
			return err
		}
	}
	return nil
}
