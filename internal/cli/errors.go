package cli

import (
	"errors"
	"fmt"

	"taskdash/internal/apperr"
)

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func errUsage(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to the process exit status. Scripts can tell a rejected
// credential from an unreachable server without parsing stderr.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return 1
	}
	switch ae.Kind {
	case apperr.KindValidation:
		return 2
	case apperr.KindAuth:
		return 3
	case apperr.KindPermission:
		return 4
	case apperr.KindNotFound:
		return 5
	case apperr.KindConflict:
		return 6
	case apperr.KindNetwork:
		return 7
	default:
		return 1
	}
}
