package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind classifies caller-facing failures so the HTTP layer can map them
// to statuses without string matching.
type ErrorKind string

const (
	ErrorKindValidation          ErrorKind = "VALIDATION"
	ErrorKindInsufficientReserve ErrorKind = "INSUFFICIENT_RESERVE"
	ErrorKindNotFound            ErrorKind = "NOT_FOUND"
	ErrorKindAuthorization       ErrorKind = "AUTHORIZATION"
	ErrorKindInvalidState        ErrorKind = "INVALID_STATE"
	ErrorKindExpired             ErrorKind = "EXPIRED"
	// ErrorKindTransaction covers infrastructure failures inside a business
	// transaction. The message stays generic so storage details never leak.
	ErrorKindTransaction ErrorKind = "TRANSACTION"
)

type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapTransaction hides the underlying infrastructure error behind a generic
// TRANSACTION error while keeping it reachable via errors.Unwrap for logging.
func WrapTransaction(err error) *Error {
	return &Error{Kind: ErrorKindTransaction, Message: "operation could not be completed", cause: err}
}

// KindOf returns the kind of err, or "" for plain errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
