package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeTooLong indicates the frame type exceeds MaxTypeLen.
	ErrTypeTooLong = errors.New("frame type too long")
	// ErrPayloadTooLong indicates the frame payload exceeds MaxPayloadLen.
	ErrPayloadTooLong = errors.New("frame payload too long")
	// ErrEmptyType indicates the frame has no type.
	ErrEmptyType = errors.New("frame type is empty")
)

// InvalidCharError reports a delimiter found inside a frame field.
type InvalidCharError struct {
	Field string
	Char  byte
}

// Error implements error.
func (e *InvalidCharError) Error() string {
	return fmt.Sprintf("invalid character %q in frame %s", e.Char, e.Field)
}
