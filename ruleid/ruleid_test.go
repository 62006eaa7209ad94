package ruleid_test

import (
	"context"
	"iter"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/filterindex/ruleid"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testText is the common filter text for tests.
const testText = "ad-button"

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// newStaticLoader returns a loader that returns rules and counts its calls in
// calls.
func newStaticLoader(rules map[string][]int, calls *atomic.Int32) (l ruleid.Loader) {
	return func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
		calls.Add(1)

		return maps.All(rules), nil
	}
}

func TestMapper(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	m := ruleid.New(&ruleid.Config{
		Logger: testLogger,
		Loader: newStaticLoader(map[string][]int{testText: {1, 2, 3}}, calls),
	})

	_, _, err := m.Get(testText)
	require.ErrorIs(t, err, ruleid.ErrNotLoaded)

	assert.False(t, m.IsLoaded())
	assert.Zero(t, m.Len())
	assert.Zero(t, calls.Load())

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, m.Load(ctx))

	ids, ok, err := m.Get(testText)
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, ids)

	ids, ok, err = m.Get("missing")
	require.NoError(t, err)

	assert.False(t, ok)
	assert.Nil(t, ids)

	assert.True(t, m.IsLoaded())
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Load(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMapper_Load_concurrent(t *testing.T) {
	t.Parallel()

	const n = 10

	calls := &atomic.Int32{}
	started := make(chan struct{})
	release := make(chan struct{})

	m := ruleid.New(&ruleid.Config{
		Logger: testLogger,
		Loader: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			if calls.Add(1) == 1 {
				close(started)
			}

			<-release

			return maps.All(map[string][]int{testText: {42}}), nil
		},
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	errCh := make(chan error, n)

	wg := &sync.WaitGroup{}
	for range n {
		wg.Go(func() {
			errCh <- m.Load(ctx)
		})
	}

	testutil.RequireReceive(t, started, testTimeout)

	// Nobody may finish until the loader returns.
	assert.Empty(t, errCh)
	assert.False(t, m.IsLoaded())

	_, _, err := m.Get(testText)
	require.ErrorIs(t, err, ruleid.ErrNotLoaded)

	close(release)
	wg.Wait()
	close(errCh)

	for err = range errCh {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(1), calls.Load())

	ids, ok, err := m.Get(testText)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []int{42}, ids)
}

func TestMapper_Load_retry(t *testing.T) {
	t.Parallel()

	const errLoad errors.Error = "test load error"

	calls := &atomic.Int32{}
	m := ruleid.New(&ruleid.Config{
		Logger: testLogger,
		Loader: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			if calls.Add(1) == 1 {
				return nil, errLoad
			}

			return maps.All(map[string][]int{testText: {1}}), nil
		},
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	err := m.Load(ctx)
	require.ErrorIs(t, err, errLoad)

	testutil.AssertErrorMsg(t, "loading rule ids: test load error", err)

	_, _, err = m.Get(testText)
	require.ErrorIs(t, err, ruleid.ErrNotLoaded)

	require.NoError(t, m.Load(ctx))
	assert.Equal(t, int32(2), calls.Load())

	_, ok, err := m.Get(testText)
	require.NoError(t, err)

	assert.True(t, ok)
}

func TestMapper_Load_badLoader(t *testing.T) {
	t.Parallel()

	const errPanic errors.Error = "test panic"

	testCases := []struct {
		bad     ruleid.Loader
		wantErr error
		name    string
	}{{
		bad: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			return nil, nil
		},
		wantErr: errors.ErrNoValue,
		name:    "nil_pairs",
	}, {
		bad: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			panic(errPanic)
		},
		wantErr: errPanic,
		name:    "panic",
	}, {
		bad: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			return func(_ func(string, []int) bool) {
				panic(errPanic)
			}, nil
		},
		wantErr: errPanic,
		name:    "panic_in_pairs",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			calls := &atomic.Int32{}
			good := newStaticLoader(map[string][]int{testText: {1}}, &atomic.Int32{})

			m := ruleid.New(&ruleid.Config{
				Logger: testLogger,
				Loader: func(ctx context.Context) (pairs iter.Seq2[string, []int], err error) {
					if calls.Add(1) == 1 {
						return tc.bad(ctx)
					}

					return good(ctx)
				},
			})

			ctx := testutil.ContextWithTimeout(t, testTimeout)

			err := m.Load(ctx)
			require.ErrorIs(t, err, tc.wantErr)

			assert.False(t, m.IsLoaded())

			require.NoError(t, m.Load(ctx))

			_, ok, err := m.Get(testText)
			require.NoError(t, err)

			assert.True(t, ok)
		})
	}
}

func TestMapper_Load_waitCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	m := ruleid.New(&ruleid.Config{
		Logger: testLogger,
		Loader: func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
			<-release

			return maps.All(map[string][]int{}), nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The loading goes on regardless of the canceled waiter.
	close(release)

	require.NoError(t, m.Load(testutil.ContextWithTimeout(t, testTimeout)))
	assert.True(t, m.IsLoaded())
	assert.Zero(t, m.Len())
}

// testMetrics is a [ruleid.Metrics] implementation for tests.
type testMetrics struct {
	onObserveLoad func(ctx context.Context, dur time.Duration, size int, err error)
}

// type check
var _ ruleid.Metrics = (*testMetrics)(nil)

// ObserveLoad implements the [ruleid.Metrics] interface for *testMetrics.
func (m *testMetrics) ObserveLoad(ctx context.Context, dur time.Duration, size int, err error) {
	m.onObserveLoad(ctx, dur, size, err)
}

func TestMapper_metrics(t *testing.T) {
	t.Parallel()

	sizeCh := make(chan int, 1)
	mtrc := &testMetrics{
		onObserveLoad: func(_ context.Context, _ time.Duration, size int, err error) {
			assert.NoError(t, err)

			sizeCh <- size
		},
	}

	m := ruleid.New(&ruleid.Config{
		Logger:  testLogger,
		Loader:  newStaticLoader(map[string][]int{"a": {1}, "b": {2}}, &atomic.Int32{}),
		Metrics: mtrc,
	})

	require.NoError(t, m.Load(testutil.ContextWithTimeout(t, testTimeout)))

	size, _ := testutil.RequireReceive(t, sizeCh, testTimeout)
	assert.Equal(t, 2, size)
}
