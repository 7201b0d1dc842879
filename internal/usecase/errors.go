package usecase

import (
	"errors"
	"fmt"

	"chat-relay/internal/integrations/synthflow"
)

type ErrorCode string

const (
	ErrorInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrorConfigMissing        ErrorCode = "CONFIG_MISSING"
	ErrorRemoteNotFound       ErrorCode = "REMOTE_NOT_FOUND"
	ErrorRemoteEnded          ErrorCode = "REMOTE_ENDED"
	ErrorRemoteConfigConflict ErrorCode = "REMOTE_CONFIG_CONFLICT"
	ErrorRemoteOther          ErrorCode = "REMOTE_OTHER"
	ErrorInternal             ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// remoteError wraps a backend failure with the code matching its class.
func remoteError(reason string, err error) *Error {
	return newError(remoteCode(synthflow.KindOf(err)), reason, err)
}

func remoteCode(kind synthflow.ErrorKind) ErrorCode {
	switch kind {
	case synthflow.KindNotFound:
		return ErrorRemoteNotFound
	case synthflow.KindEnded:
		return ErrorRemoteEnded
	case synthflow.KindConfigConflict:
		return ErrorRemoteConfigConflict
	default:
		return ErrorRemoteOther
	}
}

// CodeOf returns the ErrorCode carried by err, or ErrorInternal.
func CodeOf(err error) ErrorCode {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code
	}
	return ErrorInternal
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
