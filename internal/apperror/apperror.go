package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindForbidden   Kind = "FORBIDDEN"
	KindPersistence Kind = "PERSISTENCE"
)

// Code names the invariant that blocked an operation.
type Code string

const (
	CodeInvalidInput          Code = "invalid_input"
	CodeAccountNotFound       Code = "account_not_found"
	CodeMemberNotFound        Code = "member_not_found"
	CodeBatchNotFound         Code = "batch_not_found"
	CodeVoucherNotFound       Code = "voucher_not_found"
	CodeApprovalSetNotFound   Code = "approval_set_not_found"
	CodeUserNotFound          Code = "user_not_found"
	CodeDuplicate             Code = "duplicate"
	CodeAlreadySettled        Code = "already_settled"
	CodeNotSettled            Code = "not_settled"
	CodeReversalWindowExpired Code = "reversal_window_expired"
	CodeNothingToReverse      Code = "nothing_to_reverse"
	CodeReversalExceedsCredit Code = "reversal_exceeds_credit"
	CodeAlreadyVerified       Code = "already_verified"
	CodeNotVerified           Code = "not_verified"
	CodeAlreadyPaid           Code = "already_paid"
	CodeNotPaid               Code = "not_paid"
	CodeRowSetChanged         Code = "row_set_changed"
	CodeConcurrentUpdate      Code = "concurrent_modification"
	CodeForbidden             Code = "forbidden"
	CodePartialApplyFailure   Code = "partial_apply_failure"
	CodePersistenceFailure    Code = "persistence_failure"
)

// Error is the domain error returned by every contract operation.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may safely retry. Only store failures qualify;
// the atomic unit guarantees nothing was written.
func (e *Error) Retryable() bool {
	return e.Kind == KindPersistence
}

// Sentinels for errors.Is checks.
var (
	ErrAccountNotFound       = &Error{Kind: KindNotFound, Code: CodeAccountNotFound}
	ErrMemberNotFound        = &Error{Kind: KindNotFound, Code: CodeMemberNotFound}
	ErrBatchNotFound         = &Error{Kind: KindNotFound, Code: CodeBatchNotFound}
	ErrVoucherNotFound       = &Error{Kind: KindNotFound, Code: CodeVoucherNotFound}
	ErrApprovalSetNotFound   = &Error{Kind: KindNotFound, Code: CodeApprovalSetNotFound}
	ErrAlreadySettled        = &Error{Kind: KindConflict, Code: CodeAlreadySettled}
	ErrNotSettled            = &Error{Kind: KindConflict, Code: CodeNotSettled}
	ErrReversalWindowExpired = &Error{Kind: KindConflict, Code: CodeReversalWindowExpired}
	ErrNothingToReverse      = &Error{Kind: KindConflict, Code: CodeNothingToReverse}
	ErrReversalExceedsCredit = &Error{Kind: KindConflict, Code: CodeReversalExceedsCredit}
	ErrAlreadyVerified       = &Error{Kind: KindConflict, Code: CodeAlreadyVerified}
	ErrNotVerified           = &Error{Kind: KindConflict, Code: CodeNotVerified}
	ErrAlreadyPaid           = &Error{Kind: KindConflict, Code: CodeAlreadyPaid}
	ErrNotPaid               = &Error{Kind: KindConflict, Code: CodeNotPaid}
	ErrRowSetChanged         = &Error{Kind: KindConflict, Code: CodeRowSetChanged}
	ErrConcurrentUpdate      = &Error{Kind: KindConflict, Code: CodeConcurrentUpdate}
	ErrForbidden             = &Error{Kind: KindForbidden, Code: CodeForbidden}
	ErrPartialApplyFailure   = &Error{Kind: KindPersistence, Code: CodePartialApplyFailure}
	ErrPersistenceFailure    = &Error{Kind: KindPersistence, Code: CodePersistenceFailure}
	ErrInvalidInput          = &Error{Kind: KindValidation, Code: CodeInvalidInput}
)

func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, CodeInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(code Code, format string, args ...any) *Error {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

func Conflict(code Code, format string, args ...any) *Error {
	return New(KindConflict, code, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, CodeForbidden, fmt.Sprintf(format, args...))
}

// Persistence wraps a store failure. Domain errors pass through unchanged so a
// rejection raised inside a transaction keeps its kind after rollback.
func Persistence(code Code, message string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return Wrap(KindPersistence, code, message, err)
}

// KindOf returns the kind of err, or KindPersistence for foreign errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindPersistence
}

// CodeOf returns the code of err, or CodePersistenceFailure for foreign errors.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodePersistenceFailure
}

// IsRetryable reports whether err may be retried by the caller.
func IsRetryable(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return false
}
