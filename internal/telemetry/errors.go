package telemetry

import (
	"errors"
	"io/fs"
)

var (
	// ErrMalformedBlock reports a block whose positional lines cannot be parsed.
	ErrMalformedBlock = errors.New("malformed block")
	// ErrMissingKey reports a composite annotation field that is absent.
	ErrMissingKey = errors.New("missing required key")
	// ErrTypeCoercion reports a column that cannot be cast to its declared type.
	ErrTypeCoercion = errors.New("type coercion failure")
)

// Code is a stable, loggable classification of a conversion error.
type Code string

const (
	CodeMalformedBlock Code = "malformed_block"
	CodeMissingKey     Code = "missing_key"
	CodeTypeCoercion   Code = "type_coercion"
	CodeIO             Code = "io"
	CodeUnknown        Code = "unknown"
)

// Classify maps err onto a Code using sentinel matching only.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, ErrMalformedBlock):
		return CodeMalformedBlock
	case errors.Is(err, ErrMissingKey):
		return CodeMissingKey
	case errors.Is(err, ErrTypeCoercion):
		return CodeTypeCoercion
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
