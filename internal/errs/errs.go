// Package errs enumerates the error kinds of §7: ConfigError is fatal at
// startup, NetworkError/ValidationError/DependencyError are soft failures
// logged and swallowed at the workflow boundary, and StorageError is fatal
// to the current task but never unwinds past the dispatcher.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy decisions.
type Kind int

const (
	KindConfig Kind = iota
	KindNetwork
	KindStorage
	KindValidation
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindNetwork:
		return "NetworkError"
	case KindStorage:
		return "StorageError"
	case KindValidation:
		return "ValidationError"
	case KindDependency:
		return "DependencyError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying cause with a Kind so the workflow boundary can
// decide whether to log-and-continue or abort.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Config(op string, err error) *Error     { return New(KindConfig, op, err) }
func Network(op string, err error) *Error    { return New(KindNetwork, op, err) }
func Storage(op string, err error) *Error    { return New(KindStorage, op, err) }
func Validation(op string, err error) *Error { return New(KindValidation, op, err) }
func Dependency(op string, err error) *Error { return New(KindDependency, op, err) }

// IsSoft reports whether an error kind is non-fatal to the current entry's
// processing: the flag it was trying to advance simply stays false.
func IsSoft(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNetwork, KindValidation, KindDependency:
			return true
		}
	}
	return false
}
