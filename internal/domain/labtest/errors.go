package labtest

import "errors"

var (
	ErrTestRequestNotFound     = errors.New("test request not found")
	ErrInvalidStatus           = errors.New("invalid test status value")
	ErrInvalidStatusTransition = errors.New("invalid test status transition")
	ErrResultNotAllowed        = errors.New("results may only be recorded while a test is pending or in progress")
	ErrInvalidResultStatus     = errors.New("invalid test result status value")
	ErrInvalidPriority         = errors.New("invalid test priority value")
)
