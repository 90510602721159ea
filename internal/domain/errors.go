package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotAvailable    = errors.New("data not available")
	ErrInvalidQuote    = errors.New("invalid quote")
	ErrConfigMismatch  = errors.New("checkpoint config fingerprint mismatch")
	ErrStateCorruption = errors.New("checkpoint state corrupted")
	ErrPositionClosed  = errors.New("position already finalized")
)
