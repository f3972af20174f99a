package util

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// AppError carries a stable kind and a user-facing message.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func NotFoundError(msg string) *AppError   { return &AppError{Kind: KindNotFound, Message: msg} }
func ForbiddenError(msg string) *AppError  { return &AppError{Kind: KindForbidden, Message: msg} }
func BadRequestError(msg string) *AppError { return &AppError{Kind: KindBadRequest, Message: msg} }
func ConflictError(msg string) *AppError   { return &AppError{Kind: KindConflict, Message: msg} }

// Wrap attaches a cause to a copy of a sentinel.
func Wrap(sentinel *AppError, err error) *AppError {
	return &AppError{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrExamNotFound            = NotFoundError("exam not found")
	ErrQuestionNotFound        = NotFoundError("question not found")
	ErrAttemptNotFound         = NotFoundError("attempt not found")
	ErrUserNotFound            = NotFoundError("user not found")
	ErrCourseNotFound          = NotFoundError("course not found")
	ErrAnswerNotInAttempt      = NotFoundError("question is not part of this attempt")
	ErrPermissionDenied        = ForbiddenError("permission denied")
	ErrNotEnrolled             = ForbiddenError("student is not enrolled in the exam's course")
	ErrInstitutionMismatch     = ForbiddenError("exam belongs to another institution")
	ErrNoQuestions             = BadRequestError("no questions")
	ErrExamLocked              = BadRequestError("exam can no longer be modified")
	ErrInvalidTransition       = BadRequestError("invalid exam status transition")
	ErrExamNotOpen             = BadRequestError("exam is not open for attempts")
	ErrExamNotStarted          = BadRequestError("exam has not started yet")
	ErrExamEnded               = BadRequestError("exam has ended")
	ErrMaxAttemptsReached      = BadRequestError("maximum attempts reached")
	ErrAttemptInProgress       = BadRequestError("an attempt is already in progress")
	ErrAttemptAlreadySubmitted = BadRequestError("attempt already submitted")
	ErrAttemptNotFinalized     = BadRequestError("attempt has not been submitted")
	ErrTimeExpired             = BadRequestError("time expired")
	ErrQuestionInUse           = BadRequestError("question is used by an exam")
	ErrQuestionInAttempt       = BadRequestError("question is part of an attempt in progress")
	ErrDuplicate               = ConflictError("duplicate entry")
)
