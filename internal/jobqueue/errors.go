package jobqueue

import "errors"

var (
	ErrNotFound      = errors.New("jobqueue: job not found")
	ErrInvalidState  = errors.New("jobqueue: job not in expected state")
	ErrQueueRequired = errors.New("jobqueue: queue name is required")
)

// permanentError marks a handler error that must not be retried. The store
// terminalizes the job on the first Fail regardless of remaining attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
