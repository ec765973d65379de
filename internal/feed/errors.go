package feed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by gateways when a row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrReadOnly is returned for writes to a feed only the platform writes.
var ErrReadOnly = errors.New("feed is read-only")

// ErrorCode categorizes failures surfaced to the presentation layer.
type ErrorCode string

const (
	// ErrCodeTransient covers subscription drops and fetch timeouts.
	// Retried automatically; surfaced only through logs.
	ErrCodeTransient ErrorCode = "TRANSIENT"

	// ErrCodeWriteFailed indicates an optimistic write (or mark-read) was
	// rejected. The local change has already been rolled back.
	ErrCodeWriteFailed ErrorCode = "WRITE_FAILED"

	// ErrCodeDetailMissing indicates the row behind a change event could
	// not be fetched. The event is dropped.
	ErrCodeDetailMissing ErrorCode = "DETAIL_MISSING"

	// ErrCodeDisconnected indicates reconnection attempts were exhausted.
	// Loaded items stay visible but stop updating.
	ErrCodeDisconnected ErrorCode = "DISCONNECTED"
)

// Error is the only error type handed to listeners.
type Error struct {
	Code    ErrorCode
	Message string

	// Topic is the feed the failure belongs to, when known.
	Topic string

	// LocalID identifies the rolled-back optimistic item (write failures).
	LocalID string

	// IDs lists the items whose read state was reverted (mark-read failures).
	IDs []string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Topic != "" {
		fmt.Fprintf(&b, " (topic=%s)", e.Topic)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewWriteError reports a rejected optimistic write.
func NewWriteError(topic, localID string, err error) *Error {
	return &Error{
		Code:    ErrCodeWriteFailed,
		Message: "message not sent, retry",
		Topic:   topic,
		LocalID: localID,
		Err:     err,
	}
}

// NewMarkReadError reports a rejected mark-read write.
func NewMarkReadError(topic string, ids []string, err error) *Error {
	return &Error{
		Code:    ErrCodeWriteFailed,
		Message: "could not mark notifications as read",
		Topic:   topic,
		IDs:     ids,
		Err:     err,
	}
}

// NewDisconnectedError reports that the live feed stopped updating.
func NewDisconnectedError(topic string, err error) *Error {
	return &Error{
		Code:    ErrCodeDisconnected,
		Message: "disconnected, live updates paused",
		Topic:   topic,
		Err:     err,
	}
}

// NewTransientError wraps a retryable transport failure.
func NewTransientError(topic string, err error) *Error {
	return &Error{
		Code:    ErrCodeTransient,
		Message: "transport failure",
		Topic:   topic,
		Err:     err,
	}
}

// NewDetailError reports a change event whose row could not be fetched.
func NewDetailError(topic, rowID string, err error) *Error {
	return &Error{
		Code:    ErrCodeDetailMissing,
		Message: fmt.Sprintf("row %s unavailable", rowID),
		Topic:   topic,
		Err:     err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsWriteFailed reports whether err is a rolled-back write.
func IsWriteFailed(err error) bool {
	return CodeOf(err) == ErrCodeWriteFailed
}

// IsDisconnected reports whether err signals exhausted reconnection.
func IsDisconnected(err error) bool {
	return CodeOf(err) == ErrCodeDisconnected
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
