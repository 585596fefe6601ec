package service

import (
	"errors"
	"log/slog"
)

// Error kinds.  Every error returned by the ledger or the poll engine
// matches exactly one of these with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrDuplicate        = errors.New("duplicate reservation")
	ErrForbidden        = errors.New("forbidden")
	ErrNotAMember       = errors.New("not a member")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInternal         = errors.New("internal error")
)

// Error carries a kind and a user-facing message.  For internal
// failures the storage error is kept as Err so it can be logged, but
// it is never part of Message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func fail(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// internalError logs the storage failure and hides it behind ErrInternal.
func internalError(logger *slog.Logger, op string, err error) error {
	logger.Error("storage failure", "op", op, "error", err)
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
