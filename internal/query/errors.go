package query

import "errors"

// ExecutionError reports any failure raised while running query text,
// including policy rejections.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Message == "" && e.Err != nil {
		return "query execution failed: " + e.Err.Error()
	}
	return "query execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(message string, err error) *ExecutionError {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &ExecutionError{Message: message, Err: err}
}

func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
