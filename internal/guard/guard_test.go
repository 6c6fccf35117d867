package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clinical-dss-be/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		RatePerSecond:  1000,
		Burst:          1000,
		MaxConcurrent:  8,
		BreakThreshold: 5,
		BreakCooldown:  30 * time.Second,
	}
}

func transientErr() error {
	return apperr.New(apperr.KindUpstreamTransient, "upstream timed out")
}

func TestGuard_PassesThroughSuccess(t *testing.T) {
	g := NewGuard("clinical_ner", testConfig())

	called := false
	err := g.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, g.Healthy())
}

func TestGuard_OpensAfterConsecutiveFailures(t *testing.T) {
	g := NewGuard("literature", testConfig())

	for i := 0; i < 5; i++ {
		err := g.Do(context.Background(), func(ctx context.Context) error {
			return transientErr()
		})
		require.Error(t, err)
		assert.Equal(t, apperr.KindUpstreamTransient, apperr.KindOf(err))
	}

	// Circuit is open now: the call must be rejected without running fn.
	called := false
	err := g.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, g.Healthy())
}

func TestGuard_SuccessResetsFailureCount(t *testing.T) {
	g := NewGuard("embedding", testConfig())

	for i := 0; i < 4; i++ {
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			return transientErr()
		})
	}
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	// Four more failures do not reach the threshold again.
	for i := 0; i < 4; i++ {
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			return transientErr()
		})
	}
	assert.True(t, g.Healthy())
}

func TestGuard_ValidationErrorsDoNotTrip(t *testing.T) {
	g := NewGuard("clinical_ner", testConfig())

	for i := 0; i < 10; i++ {
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			return apperr.New(apperr.KindValidation, "bad input")
		})
	}

	assert.True(t, g.Healthy())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Record(false)
	b.Record(false)
	assert.False(t, b.Allow(), "open breaker must reject before cooldown")

	// Cooldown elapses: exactly one probe is admitted.
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "only one probe at a time in half-open")

	// Failed probe reopens the circuit.
	b.Record(false)
	assert.False(t, b.Allow())

	// After another cooldown a successful probe closes it.
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())
	b.Record(true)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestGuard_ConcurrencyCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	g := NewGuard("similarity", cfg)

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestGuard_ContextCancelledWhileWaiting(t *testing.T) {
	cfg := testConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	g := NewGuard("literature", cfg)

	// Drain the single burst token.
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Do(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}
