package firmware

import "errors"

var (
	// ErrInvalidConfig is wrapped by every config validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownHAL reports a HAL name other than sim or periph.
	ErrUnknownHAL = errors.New("unknown HAL")
)
