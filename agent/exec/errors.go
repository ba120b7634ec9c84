package exec

import "fmt"

var (
	// ErrConflictingModes is returned by New when both an executable and a
	// service are configured.
	ErrConflictingModes = fmt.Errorf("exec: set only one of an executable path or a service name")

	// ErrNoConfig is returned when the process cannot start because the
	// rendered configuration is not on disk yet.
	ErrNoConfig = fmt.Errorf("exec: configuration file not written yet")
)

// ExitError is recorded when the supervised process exits on its own.
type ExitError struct {
	Code  int
	Cause error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exec: non-zero exit (%v): %v", e.Code, e.Cause)
	}

	return fmt.Sprintf("exec: non-zero exit (%v)", e.Code)
}
