package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError carries the call site and slog attributes of the place where it was created.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter of the caller that created the error.
	pc uintptr
	// attrs are added to the log event when the error is logged with SlogError.
	attrs []slog.Attr
	// wrapped is the cause, if any.
	wrapped error
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	return pcs[0]
}

// New creates an AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) error {
	// Skip runtime.Callers, callerPC and New.
	return &AnnotatedError{
		msg:   msg,
		pc:    callerPC(3), //nolint:mnd // see above
		attrs: attrs,
	}
}

// NewSentinel creates a plain error without context, meant to be matched with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Wrap annotates err with a message, the caller's location and attributes.
//
// Wrap returns nil when err is nil so that it can be used on the return path unconditionally.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &AnnotatedError{
		msg:     msg,
		pc:      callerPC(3), //nolint:mnd // skip runtime.Callers, callerPC and Wrap
		attrs:   attrs,
		wrapped: err,
	}
}

// Error implements error interface.
func (e *AnnotatedError) Error() string {
	if e.wrapped == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.wrapped.Error())
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *AnnotatedError) Unwrap() error {
	return e.wrapped
}

func (e *AnnotatedError) source() string {
	frames := runtime.CallersFrames([]uintptr{e.pc})
	frame, _ := frames.Next()
	return fmt.Sprintf("%s:%d", frame.File, frame.Line)
}

// LogValue collects the attributes of the whole chain, innermost source first.
func (e *AnnotatedError) LogValue() slog.Value {
	var (
		attrs   []slog.Attr
		sources []string
		cur     error = e
	)
	for cur != nil {
		var annotated *AnnotatedError
		if !errors.As(cur, &annotated) {
			break
		}
		sources = append(sources, annotated.source())
		attrs = append(attrs, annotated.attrs...)
		cur = annotated.wrapped
	}
	attrs = append([]slog.Attr{
		slog.String("message", e.Error()),
		slog.String("source", sources[len(sources)-1]),
	}, attrs...)
	return slog.GroupValue(attrs...)
}

// SlogError turns err into an attribute under the "error" key.
func SlogError(err error) slog.Attr {
	var annotated *AnnotatedError
	if errors.As(err, &annotated) {
		return slog.Any("error", annotated)
	}
	if err == nil {
		return slog.String("error", "<nil>")
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

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
