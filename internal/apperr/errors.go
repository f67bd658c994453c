// Package apperr defines the typed failures surfaced by the publishing
// workflow. Every error carries a stable code for handler-summary logging and
// a short operator-facing message.
package apperr

import "fmt"

// Kind enumerates the failure classes the workflow recovers from.
type Kind string

const (
	// KindGeneration covers backend errors, timeouts and empty results from
	// the text generator.
	KindGeneration Kind = "GENERATION_FAILURE"
	// KindDetection covers a missing model, inference errors and corrupt
	// input images.
	KindDetection Kind = "DETECTION_FAILURE"
	// KindSanitization covers encode/decode errors while redacting.
	KindSanitization Kind = "SANITIZATION_FAILURE"
	// KindPublish covers transport rejection of the composed album.
	KindPublish Kind = "PUBLISH_FAILURE"
	// KindInvalidTransition marks an event received in a stage that does not
	// accept it.
	KindInvalidTransition Kind = "INVALID_TRANSITION"
)

// Error is a workflow failure with a stable code and a user-facing message.
type Error struct {
	Kind    Kind
	Message string // shown to the operator
	Err     error  // underlying cause, logged but never shown
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable failure code consumed by handler-summary logging.
func (e *Error) Code() string { return string(e.Kind) }

// UserMessage returns the short explanation sent back to the operator.
func (e *Error) UserMessage() string { return e.Message }

// Is matches against sentinel errors of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Generation wraps err as a generation failure.
func Generation(msg string, err error) *Error {
	return &Error{Kind: KindGeneration, Message: msg, Err: err}
}

// Detection wraps err as a detection failure.
func Detection(msg string, err error) *Error {
	return &Error{Kind: KindDetection, Message: msg, Err: err}
}

// Sanitization wraps err as a sanitization failure.
func Sanitization(msg string, err error) *Error {
	return &Error{Kind: KindSanitization, Message: msg, Err: err}
}

// Publish wraps err as a publish failure.
func Publish(msg string, err error) *Error {
	return &Error{Kind: KindPublish, Message: msg, Err: err}
}

// InvalidTransition reports an event that is not valid for the current stage.
func InvalidTransition(msg string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: msg}
}

// Sentinels for errors.Is checks in handlers and tests.
var (
	ErrGeneration        = &Error{Kind: KindGeneration}
	ErrDetection         = &Error{Kind: KindDetection}
	ErrSanitization      = &Error{Kind: KindSanitization}
	ErrPublish           = &Error{Kind: KindPublish}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
)
