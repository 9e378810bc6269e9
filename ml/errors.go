package ml

import "errors"

var (
	ErrNotFitted       = errors.New("model not trained")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidArtifact = errors.New("invalid model artifact")
)
