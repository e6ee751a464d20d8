package broker

import "errors"

// nonRetryable marks a handler failure that must not consume retry attempts.
type nonRetryable struct {
	err error
}

func (e *nonRetryable) Error() string { return e.err.Error() }
func (e *nonRetryable) Unwrap() error { return e.err }

// NonRetryable wraps err so the pipeline routes the message straight to the
// dead-letter topic. Use it for message-shape and business-rule violations
// where retrying can never succeed.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryable{err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) was marked with
// NonRetryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryable
	return errors.As(err, &nr)
}
