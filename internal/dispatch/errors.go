package dispatch

import "errors"

// RetryableError marks a failure the executor should retry with backoff:
// provider outages, transient storage errors.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will not heal on retry: missing rows,
// malformed payloads. It is still surfaced so the executor's failure surface
// and the ledger see it, but it must not trigger another attempt.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable wraps err as retryable. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent wraps err as permanent. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether the executor should retry. Unclassified errors
// retry, matching the executor's default policy; only an explicit
// PermanentError suppresses the retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	return !errors.As(err, &perm)
}
