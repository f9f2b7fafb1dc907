// Package retry runs an operation with exponential backoff and jitter.
//
// The loop itself is github.com/sethvargo/go-retry: waits are timers that
// honour context cancellation. This package supplies the backoff curve, the
// classification of retryable errors, and tracing of each execution.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/telemetry"
	goretry "github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Policy configures one execution.
type Policy struct {
	// Name labels logs and spans.
	Name string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps the exponential part of a wait; zero means no cap.
	MaxDelay time.Duration
	// JitterMax bounds the random offset added to every wait.
	JitterMax time.Duration
	// IsRetryable decides whether an error is worth another attempt.
	// Nil means autherr.IsRateLimited.
	IsRetryable func(error) bool
	// OnRetry, when set, is called before each wait. attempt starts at 0.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy retries rate-limited calls twice, starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		JitterMax:   250 * time.Millisecond,
		IsRetryable: autherr.IsRateLimited,
	}
}

// Delay returns the wait before retry number attempt (from 0), without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d >= time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retrier executes actions under a Policy. It is safe for concurrent use.
type Retrier struct {
	log    logging.Logger
	tracer trace.Tracer
	// jitter returns a value in [0, max].
	jitter func(max time.Duration) time.Duration
}

func New(log logging.Logger) *Retrier {
	return &Retrier{
		log:    log,
		tracer: telemetry.Tracer(),
		jitter: randomJitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

// Execute runs action until it succeeds, fails with a non-retryable error,
// or MaxRetries retries have been spent. The last error is returned
// unchanged. Cancelling ctx during a wait returns ctx.Err().
func (r *Retrier) Execute(ctx context.Context, action func(ctx context.Context) error, p Policy) error {
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = autherr.IsRateLimited
	}
	name := p.Name
	if name == "" {
		name = "operation"
	}

	ctx, span := r.tracer.Start(ctx, "retry.Execute", trace.WithAttributes(
		attribute.String("retry.operation", name),
		attribute.Int("retry.max_retries", p.MaxRetries),
	))
	defer span.End()

	var (
		attempts int
		lastErr  error
	)

	next := 0
	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		wait := p.Delay(next) + r.jitter(p.JitterMax)
		if p.OnRetry != nil {
			p.OnRetry(next, wait, lastErr)
		}
		r.log.Debug(ctx, "retrying after backoff",
			"operation", name, "attempt", next+1, "wait", wait, "error", lastErr)
		next++
		return wait, false
	})

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	err := goretry.Do(ctx, goretry.WithMaxRetries(uint64(maxRetries), backoff), func(ctx context.Context) error {
		attempts++
		err := action(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})

	span.SetAttributes(attribute.Int("retry.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if attempts > 1 {
			r.log.Warn(ctx, "operation failed after retries", "operation", name, "attempts", attempts, "error", err)
		}
		return err
	}
	return nil
}
