package resilience

import (
	"context"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

const pacerKey = "replay"

// Pacer spaces out sequential work with a token bucket. A nil Pacer never
// waits.
type Pacer struct {
	limiter ratelimit.RateLimiter
}

// NewPacer returns a pacer allowing rate operations per second with the
// given burst, or nil when rate is not positive.
func NewPacer(rate, burst int) *Pacer {
	if rate <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: ratelimit.New(&ratelimit.Config{
		Rate:  rate,
		Burst: burst,
	})}
}

// Wait blocks until the next operation may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx, pacerKey)
}
