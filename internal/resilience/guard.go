package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Guard bundles the policies applied around every call to one external
// provider: rate limit, circuit breaker and a bounded timeout.
type Guard struct {
	Name    string
	Limiter *AdaptiveLimiter
	Breaker *Breaker
	Timeout time.Duration
	// OnResult observes every call outcome (metrics).
	OnResult func(provider string, err error)
}

// NewGuard creates a guard with its own breaker and limiter.
func NewGuard(name string, ratePerSec float64, timeout time.Duration, breakers *Breakers) *Guard {
	g := &Guard{
		Name:    name,
		Limiter: NewAdaptiveLimiter(ratePerSec, 1),
		Timeout: timeout,
	}
	if breakers != nil {
		g.Breaker = breakers.Get(name)
	}
	return g
}

// Call runs fn under the guard's policies. A timeout surfaces as a transient
// error, identical to a transport failure.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return fn(ctx)
	}

	if g.Breaker != nil {
		if err := g.Breaker.Allow(); err != nil {
			g.observe(err)
			return zero, eris.Wrapf(err, "%s", g.Name)
		}
	}
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "%s: rate limiter wait", g.Name)
		}
	}

	callCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	val, err := fn(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = NewTransientError(eris.Wrapf(err, "%s: timed out after %s", g.Name, g.Timeout), 0)
	}

	if g.Breaker != nil {
		g.Breaker.Record(err)
	}
	if g.Limiter != nil {
		if IsRateLimited(err) {
			g.Limiter.OnRateLimit()
		} else if err == nil {
			g.Limiter.OnSuccess()
		}
	}
	g.observe(err)

	if err != nil {
		return zero, err
	}
	return val, nil
}

func (g *Guard) observe(err error) {
	if g.OnResult != nil {
		g.OnResult(g.Name, err)
	}
}
