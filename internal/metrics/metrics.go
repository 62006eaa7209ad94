// Package metrics contains the Prometheus-based implementations of the
// metrics interfaces of the module.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/filterindex/ruleid"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// subsystemRuleID is the subsystem of the rule id mapper metrics.
const subsystemRuleID = "ruleid"

// RuleIDMapper is the Prometheus-based implementation of the [ruleid.Metrics]
// interface.
type RuleIDMapper struct {
	// loads is a counter of the loads, labeled by their success.
	loads *prometheus.CounterVec

	// duration is a histogram with the durations of the loads.
	duration prometheus.Histogram

	// size is a gauge with the number of texts in the last loaded mapping.
	size prometheus.Gauge
}

// type check
var _ ruleid.Metrics = (*RuleIDMapper)(nil)

// NewRuleIDMapper registers the rule id mapper metrics in reg and returns a
// properly initialized *RuleIDMapper.
func NewRuleIDMapper(namespace string, reg prometheus.Registerer) (m *RuleIDMapper, err error) {
	const (
		loads    = "loads_total"
		duration = "load_duration_seconds"
		size     = "size"
	)

	m = &RuleIDMapper{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      loads,
			Namespace: namespace,
			Subsystem: subsystemRuleID,
			Help: "The total number of rule id mapping loads.  " +
				"Label success is 1 for successful loads and 0 otherwise.",
		}, []string{"success"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      duration,
			Namespace: namespace,
			Subsystem: subsystemRuleID,
			Help:      "The duration of rule id mapping loads.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 10, 30},
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      size,
			Namespace: namespace,
			Subsystem: subsystemRuleID,
			Help:      "The number of filter texts in the loaded rule id mapping.",
		}),
	}

	var errs []error
	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   loads,
		Value: m.loads,
	}, {
		Key:   duration,
		Value: m.duration,
	}, {
		Key:   size,
		Value: m.size,
	}}

	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveLoad implements the [ruleid.Metrics] interface for *RuleIDMapper.
func (m *RuleIDMapper) ObserveLoad(_ context.Context, dur time.Duration, size int, err error) {
	m.duration.Observe(dur.Seconds())

	if err != nil {
		m.loads.WithLabelValues("0").Inc()

		return
	}

	m.loads.WithLabelValues("1").Inc()
	m.size.Set(float64(size))
}
