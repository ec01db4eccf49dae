// Package retry provides backoff strategies and a bounded retry loop for
// operations that fail transiently, such as sending contact-form mail or
// calling the backend API.
//
// Features:
//   - Exponential and constant backoff, optional jitter
//   - Context-aware waits that stop as soon as the caller cancels
//   - Retry-After header parsing for rate limited responses
//   - Retry predicates that understand classified fetch errors
//
// Basic usage:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return mailer.Send(ctx, msg)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ExponentialBackoff{BaseDelay: time.Second, Multiplier: 2},
//		Logger:      logger.GetLogger(),
//	})
//
// The fetch client does not use Do directly: it needs to inspect responses as
// well as errors, so it runs its own attempt loop on top of the primitives
// here (NextDelay, Wait, RetryAfter).
package retry
