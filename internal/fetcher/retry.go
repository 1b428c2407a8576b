package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// isTransient classifies errors that a later attempt may not hit: retryable
// HTTP statuses, network timeouts and connection resets.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset by peer", "broken pipe", "i/o timeout", "tls handshake timeout", "421 "} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// retryPolicy bounds attempts and backoff for one fetch.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func (p retryPolicy) withDefaults() retryPolicy {
	if p.maxAttempts <= 0 {
		p.maxAttempts = 3
	}
	if p.initialBackoff <= 0 {
		p.initialBackoff = 500 * time.Millisecond
	}
	if p.maxBackoff <= 0 {
		p.maxBackoff = 15 * time.Second
	}
	return p
}

// retry runs fn until it succeeds, fails permanently, the attempts run out or
// ctx ends. It returns the last error.
func retry(ctx context.Context, p retryPolicy, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(lastErr) || attempt == p.maxAttempts-1 {
			return lastErr
		}

		zap.L().Warn("fetcher: retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		t := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}

// backoff is exponential with +/-25% jitter, capped at maxBackoff.
func (p retryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.initialBackoff) * math.Pow(2, float64(attempt))
	if d > float64(p.maxBackoff) {
		d = float64(p.maxBackoff)
	}
	d += (rand.Float64()*2 - 1) * d * 0.25
	return time.Duration(d)
}
