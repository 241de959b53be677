package tools

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no task matched for the owner. It carries no
// information about other owners' tasks.
var ErrNotFound = errors.New("task not found")

// InvalidArgumentError reports a malformed or missing tool argument. The
// reason is safe to show to the user.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return e.Reason
}

func invalidArgumentf(format string, v ...interface{}) error {
	return &InvalidArgumentError{Reason: fmt.Sprintf(format, v...)}
}

func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}
