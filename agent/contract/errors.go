package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("payload violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrHopLimit        = errors.New("workflow hop limit exceeded")
	ErrManifest        = errors.New("invalid capability manifest")
	ErrIncompleteTurn  = errors.New("turn ended without a result")
)
