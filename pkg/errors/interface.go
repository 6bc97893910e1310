// Package errors gives rig failures a stable code so callers can branch on
// the kind of failure (a missing port, a failed write, a rejected frame)
// without matching on message text.
package errors

// ErrorCode names one failure kind. The codes live in codes.go and are
// logged as the error_code field.
type ErrorCode string

// Error is a coded failure. GetData carries whatever identifies the
// failing thing, such as the port name, the command or the glyph text.
type Error interface {
	error
	Code() ErrorCode
	GetData() any
	WithMessage(msg string) Error
	WithData(data any) Error
	// Unwrap exposes the driver, socket or sqlite error underneath
	Unwrap() error
}

// Factory builds coded errors. Packages keep one as errFactory.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
