package errors

import (
	stderrors "errors"
	"fmt"
)

// error codes :3
const (
	Err0 = iota
	ErrOpen
	ErrUnrecognizedDLL
	ErrUnrecognizedAPI
	ErrInvalidZTS
	ErrUnreadable
	ErrUnrecognizedArch
	ErrUsage
)

// messages are printed verbatim as the report line for a failed file
var messages = map[uint32]string{
	ErrOpen:             "Unable to open the DLL.",
	ErrUnrecognizedDLL:  "Unrecognized DLL.",
	ErrUnrecognizedAPI:  "Unrecognized ZEND_MODULE_API_NO",
	ErrInvalidZTS:       "Invalid value of zts",
	ErrUnreadable:       "Unable to read the module entry.",
	ErrUnrecognizedArch: "Unrecognized architecture.",
}

type InspectError struct {
	Code uint32
	Err  error
}

func (e *InspectError) Error() string {
	msg := Message(e.Code)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InspectError) Unwrap() error {
	return e.Err
}

// New creates a new InspectError
func New(code uint32) error {
	return &InspectError{Code: code}
}

// Wrap attaches the underlying cause to a coded error
func Wrap(code uint32, err error) error {
	return &InspectError{Code: code, Err: err}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code uint32) bool {
	var ie *InspectError
	if stderrors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

// Code returns the code carried by err, or Err0 if it has none
func Code(err error) uint32 {
	var ie *InspectError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return Err0
}

// Message returns the fixed user-visible line for code
func Message(code uint32) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return fmt.Sprintf("%d", code)
}
