package util

import (
	"errors"
	"fmt"
)

// 错误类别，具体错误通过 %w 包装，用 errors.Is 判断
var (
	ErrNotFound           = errors.New("not found")
	ErrBusinessRule       = errors.New("business rule violation")
	ErrIllegalState       = errors.New("illegal state")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrServiceUnavailable = errors.New("service unavailable")
)

var (
	ErrUserNotFound          = kind(ErrNotFound, "user not found")
	ErrQuizNotFound          = kind(ErrNotFound, "quiz not found")
	ErrCourseNotFound        = kind(ErrNotFound, "course not found")
	ErrAttemptNotFound       = kind(ErrNotFound, "quiz attempt not found")
	ErrActiveAttemptNotFound = kind(ErrNotFound, "no active attempt found")
	ErrTestResultNotFound    = kind(ErrNotFound, "test result not found")

	ErrQuizInactive        = kind(ErrBusinessRule, "quiz is not active")
	ErrMaxAttemptsExceeded = kind(ErrBusinessRule, "maximum attempts exceeded")
	ErrTimeLimitExceeded   = kind(ErrBusinessRule, "time limit exceeded")
	ErrInvalidQuiz         = kind(ErrBusinessRule, "invalid quiz definition")
	ErrInvalidDateRange    = kind(ErrBusinessRule, "start date must not be after end date")

	ErrAttemptNotCompleted = kind(ErrIllegalState, "cannot calculate result for incomplete attempt")

	ErrStatisticsBusy = kind(ErrServiceUnavailable, "statistics service is busy, try again later")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func kind(k error, msg string) error {
	return &kindError{kind: k, msg: msg}
}

// Wrapf 给类别错误附加上下文
func Wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// IsClientError 业务类错误，不重试也不计入熔断
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBusinessRule) ||
		errors.Is(err, ErrIllegalState) ||
		errors.Is(err, ErrPermissionDenied)
}
