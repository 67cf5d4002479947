package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	// Initial is the delay before the first retry. Default: 2s.
	Initial time.Duration
	// Max caps the delay. Default: 2m.
	Max time.Duration
	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64
	// JitterFraction adds ±fraction of the computed delay. Default: 0.25.
	JitterFraction float64
}

// DefaultBackoff returns the job retry backoff.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:        2 * time.Second,
		Max:            2 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// FromBackoffConfig converts millisecond config values to a Backoff.
func FromBackoffConfig(initialMs, maxMs int) Backoff {
	b := DefaultBackoff()
	if initialMs > 0 {
		b.Initial = time.Duration(initialMs) * time.Millisecond
	}
	if maxMs > 0 {
		b.Max = time.Duration(maxMs) * time.Millisecond
	}
	return b
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier <= 0 {
		b.Multiplier = d.Multiplier
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.JitterFraction > 0 {
		jitterRange := delay * b.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Jitter returns a uniformly random delay in [0, max).
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
