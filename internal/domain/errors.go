package domain

import "errors"

var (
	ErrMissingIdentity  = errors.New("missing userId or token")
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingType      = errors.New("message type is required")
	ErrInvalidScope     = errors.New("invalid publish scope")
	ErrMissingTarget    = errors.New("publish target is required")
	ErrRegistryStopped  = errors.New("registry stopped")
)
