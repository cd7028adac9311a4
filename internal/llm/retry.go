package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go"
)

type failureClass int

const (
	failureNone failureClass = iota
	failureEmpty
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
	failureCanceled
)

func (c failureClass) retryable() bool {
	switch c {
	case failureEmpty, failureTimeout, failureRateLimit, failureServer:
		return true
	}
	return false
}

// Retrying retries transient failures of the wrapped Completer with
// exponential backoff.
type Retrying struct {
	next        Completer
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	onRetry     func(err error, wait time.Duration)
}

func NewRetrying(next Completer, maxAttempts int) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{
		next:        next,
		maxAttempts: uint(maxAttempts),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// OnRetry registers a callback invoked before each retry wait.
func (r *Retrying) OnRetry(fn func(err error, wait time.Duration)) *Retrying {
	r.onRetry = fn
	return r
}

func (r *Retrying) Complete(ctx context.Context, system, prompt string) (string, error) {
	op := func() (string, error) {
		out, err := r.next.Complete(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		if !classifyError(err).retryable() {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
	}
	if r.onRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(r.onRetry)))
	}
	return backoff.Retry(ctx, op, opts...)
}

func classifyError(err error) failureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.Canceled) {
		return failureCanceled
	}
	if errors.Is(err, ErrEmptyResponse) {
		return failureEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	if status := statusCode(err); status != 0 {
		return classifyStatus(status)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error") || strings.Contains(msg, "overloaded"):
		return failureServer
	case strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func statusCode(err error) int {
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	return 0
}

func classifyStatus(status int) failureClass {
	switch {
	case status == 429:
		return failureRateLimit
	case status == 408:
		return failureTimeout
	case status >= 500:
		return failureServer
	case status >= 400:
		return failureClient
	}
	return failureServer
}
