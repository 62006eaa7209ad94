package ruleid

import (
	"context"
	"time"
)

// Metrics is an interface used for collection of the rule id mapper
// statistics.
type Metrics interface {
	// ObserveLoad is called after each call to the loader.  size is the
	// number of loaded texts, err is the loading error, if any.
	ObserveLoad(ctx context.Context, dur time.Duration, size int, err error)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveLoad implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveLoad(_ context.Context, _ time.Duration, _ int, _ error) {}
