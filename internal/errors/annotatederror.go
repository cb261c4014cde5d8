package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// wrapped is the optional underlying error.
	wrapped error
}

func newAnnotatedError(skip int, msg string, wrapped error, attrs []slog.Attr) *AnnotatedError {
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	return &AnnotatedError{
		msg:     msg,
		pc:      pcs[0],
		attrs:   attrs,
		wrapped: wrapped,
	}
}

// New creates a new error with the given message and attributes. The call site is recorded.
func New(msg string, attrs ...slog.Attr) error {
	// Skip runtime.Callers, newAnnotatedError and this function.
	return newAnnotatedError(3, msg, nil, attrs) //nolint:mnd // see above
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be detected
// with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Wrap adds context to err. The returned error matches err with Is and As.
//
// Wrapping a nil error returns nil so that Wrap can be used in return statements.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return newAnnotatedError(3, msg, err, attrs) //nolint:mnd // skip runtime.Callers, newAnnotatedError and Wrap
}

// Error implements error interface.
func (err *AnnotatedError) Error() string {
	if err.wrapped == nil {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", err.msg, err.wrapped.Error())
}

// Unwrap returns the wrapped error.
func (err *AnnotatedError) Unwrap() error {
	return err.wrapped
}

// Source returns the file:line location where the error was created.
func (err *AnnotatedError) Source() string {
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	return fmt.Sprintf("%s:%d", source.File, source.Line)
}

// LogValue formats the error for useful logging.
func (err *AnnotatedError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("msg", err.Error()),
		slog.String("source", err.Source()),
	}
	attrs = append(attrs, collectAttrs(err)...)
	return slog.GroupValue(attrs...)
}

// collectAttrs gathers the attributes of every AnnotatedError in the chain, outermost first.
func collectAttrs(err error) []slog.Attr {
	var attrs []slog.Attr
	for err != nil {
		var annotated *AnnotatedError
		if !errors.As(err, &annotated) {
			break
		}
		attrs = append(attrs, annotated.attrs...)
		err = annotated.wrapped
	}
	return attrs
}

// SlogError returns a slog attribute suitable for logging err.
//
// Annotated errors are logged as a group with their source location and attributes.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	var annotated *AnnotatedError
	if errors.As(err, &annotated) {
		// Use the outermost message so that the whole chain is visible.
		attrs := []slog.Attr{
			slog.String("msg", err.Error()),
			slog.String("source", annotated.Source()),
		}
		attrs = append(attrs, collectAttrs(err)...)
		return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
	}
	return slog.String("error", err.Error())
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
