// Package xretry wraps a single logical dependency call with bounded
// retries, exponential backoff with jitter, and circuit-breaker admission.
//
// All upstream failures are normalized into one canonical *APIError before
// any retry decision looks at them; the taxonomy
// (timeout, rate_limited, auth_failure, validation, server_error, unknown)
// decides retryability: only timeouts, rate limits and server errors are
// retried. Rate-limited responses honor the provider's retry-after hint in
// preference to the computed backoff.
//
//	exec := xretry.NewExecutor(xretry.WithMaxAttempts(4))
//	result, err := xretry.DoWithResult(ctx, exec, breaker,
//		func(ctx context.Context) (PaymentLink, error) {
//			return provider.CreateLink(ctx, req)
//		})
package xretry
