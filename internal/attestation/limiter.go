package attestation

import (
	"context"

	"golang.org/x/time/rate"
)

// WithRateLimiter throttles Verify to the limiter's configured rate,
// blocking before any parsing or cryptography runs. Useful when a host
// service calls Verify once per inbound TLS handshake and needs to shed
// sustained request floods before they reach the expensive chain-validation
// path. Verify performs no rate limiting by default.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *verifyConfig) {
		c.limiter = limiter
	}
}

// awaitLimiter blocks until limiter permits one more call. A background
// context is used since Verify takes no context of its own; the limiter
// itself is the only source of backpressure.
func awaitLimiter(limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(context.Background())
}
