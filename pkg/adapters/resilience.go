package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff between retries.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used when an adapter has no explicit backoff configured.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// StatusError is returned for non-retryable, non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// NewBreaker builds the circuit breaker adapters wrap their upstream calls in.
// It opens after five consecutive failures and lets a trial request through after timeout.
func NewBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Client errors are our fault, not the upstream's.
			var se *StatusError
			return err == nil || errors.As(err, &se)
		},
	})
}

// doWithResilience executes the request built by buildRequest through the
// circuit breaker, retrying rate limits, 5xx and transport errors with
// exponential backoff. On success the caller owns the response body.
func doWithResilience(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	backoff BackoffConfig,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if backoff.InitialInterval <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				resp.Body.Close()
				return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		var se *StatusError
		if errors.As(err, &se) {
			return nil, err
		}

		lastErr = err
		if attempt >= backoff.MaxRetries {
			return nil, lastErr
		}

		delay := backoff.InitialInterval << attempt
		if backoff.MaxInterval > 0 && delay > backoff.MaxInterval {
			delay = backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
