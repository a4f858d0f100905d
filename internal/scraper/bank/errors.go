package bank

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")

	ErrNoDeviceID      = errors.New("device id not found in local storage")
	ErrNoDateInputs    = errors.New("date filter inputs not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrUnknownPage     = errors.New("unknown page")
	ErrElementNotFound = errors.New("element not found")

	ErrParsingFailed = errors.New("failed to parse bank response")
	ErrTimeout       = errors.New("operation timed out")
)

// ErrorKind classifies a failure by how the caller should react to it.
type ErrorKind string

const (
	// KindFatal aborts the flow without retry (missing device id, missing inputs).
	KindFatal ErrorKind = "fatal"
	// KindAuth is a rejected login.
	KindAuth ErrorKind = "auth"
	// KindProtocol carries a server-side error envelope.
	KindProtocol ErrorKind = "protocol"
	// KindTiming is an exhausted bounded wait.
	KindTiming ErrorKind = "timing"
	// KindItem is a single-item failure inside a bulk loop.
	KindItem ErrorKind = "item"
)

// ScraperError provides detailed error context
type ScraperError struct {
	BankCode  BankCode
	Operation string
	Kind      ErrorKind
	Cause     error
	Details   string
}

func (e *ScraperError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s failed: %v", e.BankCode, e.Operation, e.Cause)
	}
	return fmt.Sprintf("[%s] %s failed: %v - %s", e.BankCode, e.Operation, e.Cause, e.Details)
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

// ProtocolError is an error envelope returned by the bank's API. Message is
// the server text, unchanged.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// KindOf reports the kind of err. Errors that carry no explicit kind are
// classified from their sentinel cause; anything else is fatal.
func KindOf(err error) ErrorKind {
	var se *ScraperError
	if errors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}

	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		return KindProtocol
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrSessionExpired):
		return KindAuth
	case errors.Is(err, ErrTimeout):
		return KindTiming
	default:
		return KindFatal
	}
}

// Failure folds err into the result shape handed back to callers. A
// protocol error surfaces the server's own message.
func Failure(code BankCode, err error) Result {
	msg := err.Error()

	var pe *ProtocolError
	if errors.As(err, &pe) {
		msg = pe.Message
	}

	return Result{
		Success: false,
		Bank:    code,
		Message: msg,
		Kind:    KindOf(err),
	}
}
