// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-relay
//
// go-relay is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-relay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-relay.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Counter represent a single counter variable.
type Counter struct {
	c prometheus.Counter
}

// MakeCounter creates a counter and registers it with reg, or the default registry when reg is nil.
func MakeCounter(reg *Registry, metric MetricName) *Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: metric.Name, Help: metric.Description})
	reg.orDefault().reg.MustRegister(c)
	return &Counter{c: c}
}

// Inc increases counter by 1
func (counter *Counter) Inc() {
	counter.c.Inc()
}

// AddUint64 increases counter by x
func (counter *Counter) AddUint64(x uint64) {
	counter.c.Add(float64(x))
}

// GetValue returns the current value of the counter.
func (counter *Counter) GetValue() float64 {
	var m dto.Metric
	if counter.c.Write(&m) != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// TagCounter holds a set of counters distinguished by a single "tag" label.
type TagCounter struct {
	vec *prometheus.CounterVec
}

// MakeTagCounter creates a tagged counter and registers it with reg, or the default registry when reg is nil.
func MakeTagCounter(reg *Registry, metric MetricName) *TagCounter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: metric.Name, Help: metric.Description}, []string{"tag"})
	reg.orDefault().reg.MustRegister(vec)
	return &TagCounter{vec: vec}
}

// Add t[tag] += val
func (tc *TagCounter) Add(tag string, val uint64) {
	tc.vec.WithLabelValues(tag).Add(float64(val))
}

// GetValue returns the count for tag, or 0 if it was never added to.
func (tc *TagCounter) GetValue(tag string) float64 {
	var m dto.Metric
	if tc.vec.WithLabelValues(tag).Write(&m) != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// Gauge is a value that can go up and down.
type Gauge struct {
	g prometheus.Gauge
}

// MakeGauge creates a gauge and registers it with reg, or the default registry when reg is nil.
func MakeGauge(reg *Registry, metric MetricName) *Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: metric.Name, Help: metric.Description})
	reg.orDefault().reg.MustRegister(g)
	return &Gauge{g: g}
}

// Set sets the gauge to x
func (gauge *Gauge) Set(x float64) {
	gauge.g.Set(x)
}

// Add increases gauge by x, which may be negative
func (gauge *Gauge) Add(x float64) {
	gauge.g.Add(x)
}

// GetValue returns the current value of the gauge.
func (gauge *Gauge) GetValue() float64 {
	var m dto.Metric
	if gauge.g.Write(&m) != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
