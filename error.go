package avpipe

import (
	"errors"
	"fmt"
)

// Code enumerates the error kinds that can travel through the framework,
// either as synchronous return values or inside an [ErrorEvent] on the bus.
type Code int32

const (
	CodeOK Code = iota
	CodeNoLink
	CodeNoImpl
	CodeNoStream
	CodeNoCodec
	CodeUnsupportedMediaFormat
	CodeUnsupportedPixelFormat
	CodeUnsupportedSampleFormat
	CodeUnsupportedResource
	CodeInvalidArguments
	CodeInvalidTopology
	CodeInvalidContext
	CodeInvalidState
	CodeOutOfMemory
	CodeAsync
	CodeInternal
	CodeTemporarilyUnavailable
	CodeFileNotFound
	CodeFileCorrupted
	CodeInterrupted
	CodeEndOfFile
	CodeExternal
	CodeUnknown
)

// Returns the stable name of the code ("NoLink", "InvalidState", ...).
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "Ok"
	case CodeNoLink:
		return "NoLink"
	case CodeNoImpl:
		return "NoImpl"
	case CodeNoStream:
		return "NoStream"
	case CodeNoCodec:
		return "NoCodec"
	case CodeUnsupportedMediaFormat:
		return "UnsupportedMediaFormat"
	case CodeUnsupportedPixelFormat:
		return "UnsupportedPixelFormat"
	case CodeUnsupportedSampleFormat:
		return "UnsupportedSampleFormat"
	case CodeUnsupportedResource:
		return "UnsupportedResource"
	case CodeInvalidArguments:
		return "InvalidArguments"
	case CodeInvalidTopology:
		return "InvalidTopology"
	case CodeInvalidContext:
		return "InvalidContext"
	case CodeInvalidState:
		return "InvalidState"
	case CodeOutOfMemory:
		return "OutOfMemory"
	case CodeAsync:
		return "Async"
	case CodeInternal:
		return "Internal"
	case CodeTemporarilyUnavailable:
		return "TemporarilyUnavailable"
	case CodeFileNotFound:
		return "FileNotFound"
	case CodeFileCorrupted:
		return "FileCorrupted"
	case CodeInterrupted:
		return "Interrupted"
	case CodeEndOfFile:
		return "EndOfFile"
	case CodeExternal:
		return "External"
	default:
		return "Unknown"
	}
}

// An Error pairs a [Code] with an optional message and cause. All errors
// produced by the framework unwrap to one of these, so callers can classify
// failures with [CodeOf] or match sentinels with errors.Is.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("avpipe: %s: %s: %v", e.Code, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("avpipe: %s: %s", e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("avpipe: %s: %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("avpipe: %s", e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so sentinel comparisons like
// errors.Is(err, ErrNoLink) work for wrapped and messaged variants alike.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a coded error with a message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf builds a coded error with a formatted message.
func NewErrorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf classifies an arbitrary error: nil maps to [CodeOK], framework
// errors report their own code, anything else is [CodeUnknown].
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Sentinel errors for the codes that are commonly tested with errors.Is.
var (
	ErrNoLink                 = &Error{Code: CodeNoLink}
	ErrNoImpl                 = &Error{Code: CodeNoImpl}
	ErrNoStream               = &Error{Code: CodeNoStream}
	ErrNoCodec                = &Error{Code: CodeNoCodec}
	ErrUnsupportedResource    = &Error{Code: CodeUnsupportedResource}
	ErrInvalidArguments       = &Error{Code: CodeInvalidArguments}
	ErrInvalidTopology        = &Error{Code: CodeInvalidTopology}
	ErrInvalidContext         = &Error{Code: CodeInvalidContext}
	ErrInvalidState           = &Error{Code: CodeInvalidState}
	ErrTemporarilyUnavailable = &Error{Code: CodeTemporarilyUnavailable}
	ErrInterrupted            = &Error{Code: CodeInterrupted}
	ErrEndOfFile              = &Error{Code: CodeEndOfFile}
)
