package errors

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalid           = errors.New("invalid")
	ErrTooMany           = errors.New("too many requests")
	ErrTooLarge          = errors.New("payload too large")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("document has no text")
	ErrClosed            = errors.New("session closed")
	ErrIndexIO           = errors.New("vector index io failed")
)

// IsUnsupported reports a document that could not be turned into text.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrEmptyDocument)
}
