// Package providers holds the retry/backoff policy shared by the remote
// channel clients.
package providers

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const maxAttempts = 3

// CallError carries the HTTP status and raw body of a failed provider
// call so the retry policy can classify it.
type CallError struct {
	Err        error
	HTTPStatus int
	Raw        []byte
}

func (e *CallError) Error() string { return e.Err.Error() }
func (e *CallError) Unwrap() error { return e.Err }

// ShouldRetry classifies transient provider failures: timeouts, 408/429
// and 5xx are retried, everything else surfaces immediately.
func ShouldRetry(err error, httpStatus int) bool {
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
	}
	return false
}

// Backoff doubles a 500ms base per retry: 500ms, 1s, 2s.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return 500 * time.Millisecond << attempt
}

// Do runs one provider call with local rate limiting, an optional circuit
// breaker and bounded retries. Each attempt gets its own timeout derived
// from a non-cancellable parent: a caller cancel stops further attempts
// but lets the in-flight one finish so its outcome gets logged.
func Do(ctx context.Context, limiter *rate.Limiter, breaker *gobreaker.CircuitBreaker, timeout time.Duration, call func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		run := func() (any, error) {
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			return call(callCtx)
		}

		var res any
		var err error
		if breaker != nil {
			res, err = breaker.Execute(run)
		} else {
			res, err = run()
		}
		if err == nil {
			return res.(string), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", err
		}

		lastErr = err
		status := 0
		var ce *CallError
		if errors.As(err, &ce) {
			status = ce.HTTPStatus
		}
		if !ShouldRetry(err, status) {
			return "", err
		}
		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}
