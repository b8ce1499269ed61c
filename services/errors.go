package services

import "errors"

// Errors raised inside the services. They never leave a service: Execute and
// the aggregation methods turn them into error envelopes.
var (
	ErrValidation         = errors.New("missing required fields")
	ErrNotFound           = errors.New("record not found")
	ErrUnrecognizedAction = errors.New("unrecognized action")
	ErrInvalidRead        = errors.New("invalid read parameters")
	ErrStorage            = errors.New("storage write failed")
)
