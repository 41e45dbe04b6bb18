package registry

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
)

// RetryingResolver wraps an ImageResolver with retry logic per the error
// contract. The core pipeline invokes an EvidenceSource at most once per
// run; the retrying happens inside this wrapper's single call, not by
// re-invoking the pipeline.
type RetryingResolver struct {
	inner ImageResolver
}

// NewRetryingResolver wraps inner with the module's default retry policy.
func NewRetryingResolver(inner ImageResolver) *RetryingResolver {
	return &RetryingResolver{inner: inner}
}

// ResolveConfig implements ImageResolver.
//
// Retry policy per error type:
//   - PlatformMismatchError: no retry, not a transient condition
//   - NotFoundError: no retry (permanent)
//   - AuthError: retry once after backoff
//   - NetworkError / other: retry with exponential backoff (up to 3 total attempts)
func (r *RetryingResolver) ResolveConfig(ctx context.Context, ref string, platform string) (ImageConfig, error) {
	var authRetried bool

	return backoff.Retry(ctx, func() (ImageConfig, error) {
		cfg, err := r.inner.ResolveConfig(ctx, ref, platform)
		if err == nil {
			return cfg, nil
		}

		var platErr *PlatformMismatchError
		if errors.As(err, &platErr) {
			return cfg, backoff.Permanent(err)
		}

		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return ImageConfig{}, backoff.Permanent(err)
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			if authRetried {
				return ImageConfig{}, backoff.Permanent(err)
			}
			authRetried = true
			return ImageConfig{}, err
		}

		return ImageConfig{}, err
	},
		backoff.WithBackOff(newResolverBackoff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(0),
	)
}

func newResolverBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2.0
	return b
}

var _ ImageResolver = (*RetryingResolver)(nil)
