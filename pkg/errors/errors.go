package errors

import (
	stderrors "errors"
	"fmt"
)

type fundamental struct {
	msg string
	*stack
}

func (f *fundamental) Error() string { return f.msg }

type withStack struct {
	error
	*stack
}

func (w *withStack) Unwrap() error { return w.error }

type withMessage struct {
	cause error
	msg   string
}

func (w *withMessage) Error() string { return w.msg + ":" + w.cause.Error() }
func (w *withMessage) Unwrap() error { return w.cause }

// New returns an error with the supplied message and the caller stack.
func New(message string) error {
	return &fundamental{
		msg:   message,
		stack: callers(),
	}
}

// Errorf formats according to a format specifier and returns it as an error
// with the caller stack.
func Errorf(format string, args ...interface{}) error {
	return &fundamental{
		msg:   fmt.Sprintf(format, args...),
		stack: callers(),
	}
}

// NewWithReport behaves as New and forwards the error to the registered reporters.
func NewWithReport(message string) error {
	err := &fundamental{
		msg:   message,
		stack: callers(),
	}
	report(err)
	return err
}

// ErrorfAndReport behaves as Errorf and forwards the error to the registered reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := &fundamental{
		msg:   fmt.Sprintf(format, args...),
		stack: callers(),
	}
	report(err)
	return err
}

// Wrap annotates err with a message and the caller stack.
// Returns nil when err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &withStack{
		error: &withMessage{cause: err, msg: message},
		stack: callers(),
	}
}

// Wrapf annotates err with a formatted message and the caller stack.
// Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withStack{
		error: &withMessage{cause: err, msg: fmt.Sprintf(format, args...)},
		stack: callers(),
	}
}

// WrapAndReport behaves as Wrap and forwards the error to the registered reporters.
func WrapAndReport(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := &withStack{
		error: &withMessage{cause: err, msg: message},
		stack: callers(),
	}
	report(wrapped)
	return wrapped
}

// WithStack annotates err with the caller stack.
// Returns nil when err is nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{
		error: err,
		stack: callers(),
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
