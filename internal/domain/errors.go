package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch on it without inspecting
// messages or status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the error type produced by services and store adapters.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error    { return newError(KindValidation, format, args...) }
func Authorizationf(format string, args ...any) error { return newError(KindAuthorization, format, args...) }
func NotFoundf(format string, args ...any) error      { return newError(KindNotFound, format, args...) }
func Conflictf(format string, args ...any) error      { return newError(KindConflict, format, args...) }

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUnknown && e.Err != nil {
			return KindOf(e.Err)
		}
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	ErrCannotMessageSelf     = &Error{Kind: KindValidation, Msg: "sender and receiver cannot be the same user"}
	ErrEmptyMessage          = &Error{Kind: KindValidation, Msg: "message cannot be empty"}
	ErrUnknownNotification   = &Error{Kind: KindValidation, Msg: "notification type is invalid"}
	ErrInvalidStatus         = &Error{Kind: KindValidation, Msg: "notification status is invalid"}
	ErrUnauthenticated       = &Error{Kind: KindAuthorization, Msg: "no principal on request"}
	ErrDuplicateApplication  = &Error{Kind: KindConflict, Msg: "you already have an active application for this property"}
	ErrApplicationNotPending = &Error{Kind: KindConflict, Msg: "only pending applications can change status"}
	ErrApplicationForbidden  = &Error{Kind: KindAuthorization, Msg: "you cannot make this change to the application"}
	ErrDocumentNotFound      = &Error{Kind: KindNotFound, Msg: "document not found"}
)
