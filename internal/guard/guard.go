package guard

import (
	"context"
	"errors"
	"time"

	"clinical-dss-be/internal/pkg/apperr"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when the breaker for a collaborator is open.
var ErrUnavailable = errors.New("collaborator unavailable: circuit open")

type Config struct {
	RatePerSecond  float64
	Burst          int
	MaxConcurrent  int64
	BreakThreshold int
	BreakCooldown  time.Duration
}

// Guard wraps every outbound call to a single external collaborator with
// rate limiting, a concurrency cap and a circuit breaker. One Guard is
// created per collaborator so failures on one service never shed load on
// another.
type Guard struct {
	name    string
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	breaker *Breaker
}

func NewGuard(name string, cfg Config) *Guard {
	return &Guard{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		breaker: NewBreaker(cfg.BreakThreshold, cfg.BreakCooldown),
	}
}

func (g *Guard) Name() string {
	return g.name
}

// Healthy reports whether the breaker currently admits calls.
func (g *Guard) Healthy() bool {
	return !g.breaker.Open()
}

// Do runs fn under the guard. The breaker is consulted before the rate
// limiter so an open circuit fails fast without consuming tokens. A
// transient or unavailable error from fn counts as a breaker failure;
// validation and permanent errors do not trip the circuit.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, g.name+" is unavailable", ErrUnavailable)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		g.breaker.Cancel()
		return apperr.Wrap(apperr.KindCancelled, "call aborted while waiting for rate limit", err)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		g.breaker.Cancel()
		return apperr.Wrap(apperr.KindCancelled, "call aborted while waiting for concurrency slot", err)
	}
	defer g.sem.Release(1)

	err := fn(ctx)
	g.breaker.Record(!countsAsFailure(err))
	return err
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindUpstreamTransient, apperr.KindUpstreamUnavailable, apperr.KindInternal:
		return true
	}
	return false
}
