// Package ruleid contains the mapper of normalized filter texts to the
// identifiers of the corresponding platform-native rules.
package ruleid

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// ErrNotLoaded is returned by [Mapper.Get] when it's called before the first
// successful call to [Mapper.Load].  It signals a bug in the caller.
const ErrNotLoaded errors.Error = "rule id mapper is not loaded"

// Loader returns the pairs of normalized filter texts and their rule ids.
// Later pairs override the earlier ones with the same text.
type Loader func(ctx context.Context) (pairs iter.Seq2[string, []int], err error)

// Config is the configuration structure for a [Mapper].
type Config struct {
	// Logger is used to log the results of loading.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Loader is used to load the mapping.  It must not be nil.
	Loader Loader

	// Metrics is used to collect the loading statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics
}

// loadState is the state of a [Mapper].
type loadState uint8

// loadState values.
const (
	stateUnloaded loadState = iota
	stateLoading
	stateLoaded
)

// flight is a load in progress.  err must only be read after done is closed.
type flight struct {
	done chan struct{}
	err  error

	// waiters is the number of calls to [Mapper.Load] sharing this flight.
	// It's protected by the mutex of the mapper.
	waiters int
}

// Mapper maps normalized filter texts to rule ids.  The mapping is loaded at
// most once using the loader and is immutable afterwards.  A Mapper must be
// loaded with [Mapper.Load] before any calls to [Mapper.Get].
//
// Mapper is safe for concurrent use.
type Mapper struct {
	logger  *slog.Logger
	loader  Loader
	metrics Metrics

	// rules is set once the mapping is loaded.
	rules *atomic.Pointer[map[string][]int]

	// mu protects state and current.
	mu      *sync.Mutex
	current *flight
	state   loadState
}

// New returns a new *Mapper.  It doesn't call the loader; use [Mapper.Load]
// for that.  c must not be nil.
func New(c *Config) (m *Mapper) {
	logger := c.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	var mtrc Metrics = EmptyMetrics{}
	if c.Metrics != nil {
		mtrc = c.Metrics
	}

	return &Mapper{
		logger:  logger,
		loader:  c.Loader,
		metrics: mtrc,
		rules:   &atomic.Pointer[map[string][]int]{},
		mu:      &sync.Mutex{},
		state:   stateUnloaded,
	}
}

// Load loads the mapping unless it's already loaded.  Concurrent calls share
// a single call to the loader, and all of them return its error.  Once
// started, the loading isn't canceled with ctx; ctx only limits the time
// spent waiting for it.  If the loading fails, the next call to Load retries
// it.
func (m *Mapper) Load(ctx context.Context) (err error) {
	fl, ok := m.startOrJoin(ctx)
	if !ok {
		return nil
	}

	select {
	case <-fl.done:
		return fl.err
	case <-ctx.Done():
		return fmt.Errorf("waiting for rule ids: %w", context.Cause(ctx))
	}
}

// startOrJoin returns the current load, starting it if necessary.  ok is
// false if the mapping is already loaded.
func (m *Mapper) startOrJoin(ctx context.Context) (fl *flight, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateLoaded:
		return nil, false
	case stateLoading:
		m.current.waiters++

		return m.current, true
	default:
		fl = &flight{
			done:    make(chan struct{}),
			waiters: 1,
		}

		m.current = fl
		m.state = stateLoading

		go m.load(context.WithoutCancel(ctx), fl)

		return fl, true
	}
}

// load calls the loader, updates the state of m, and finishes fl.  It is
// intended to be used as a goroutine.
func (m *Mapper) load(ctx context.Context, fl *flight) {
	defer close(fl.done)

	start := time.Now()
	rules, err := m.build(ctx)
	elapsed := time.Since(start)

	m.metrics.ObserveLoad(ctx, elapsed, len(rules), err)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	if err != nil {
		fl.err = err
		m.state = stateUnloaded

		m.logger.WarnContext(
			ctx,
			"loading rule ids",
			"waiters", fl.waiters,
			slogutil.KeyError, err,
		)

		return
	}

	m.rules.Store(&rules)
	m.state = stateLoaded

	m.logger.InfoContext(
		ctx,
		"loaded rule ids",
		"count", len(rules),
		"elapsed", elapsed,
		"waiters", fl.waiters,
	)
}

// build calls the loader and builds the mapping from its result.  A panic in
// the loader or in the returned sequence is returned as an error.
func (m *Mapper) build(ctx context.Context) (rules map[string][]int, err error) {
	defer func() {
		recErr := errors.FromRecovered(recover())
		if recErr == nil {
			return
		}

		m.logger.ErrorContext(ctx, "recovered panic", slogutil.KeyError, recErr)
		slogutil.PrintStack(ctx, m.logger, slog.LevelError)

		rules, err = nil, fmt.Errorf("loading rule ids: %w", recErr)
	}()

	pairs, err := m.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rule ids: %w", err)
	} else if pairs == nil {
		return nil, fmt.Errorf("loading rule ids: pairs: %w", errors.ErrNoValue)
	}

	rules = map[string][]int{}
	for text, ids := range pairs {
		rules[text] = ids
	}

	return rules, nil
}

// Get returns the rule ids for the normalized filter text.  ok is false if
// there are none.  err is [ErrNotLoaded] if m hasn't been loaded yet.  ids
// must not be modified.
func (m *Mapper) Get(text string) (ids []int, ok bool, err error) {
	rules := m.rules.Load()
	if rules == nil {
		return nil, false, ErrNotLoaded
	}

	ids, ok = (*rules)[text]

	return ids, ok, nil
}

// IsLoaded returns true if m has been loaded successfully.
func (m *Mapper) IsLoaded() (ok bool) {
	return m.rules.Load() != nil
}

// Len returns the number of texts in the mapping.  It returns zero if m hasn't
// been loaded yet.
func (m *Mapper) Len() (n int) {
	rules := m.rules.Load()
	if rules == nil {
		return 0
	}

	return len(*rules)
}
