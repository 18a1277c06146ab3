package vocconv

import (
	"github.com/pkg/errors"
)

// The error kinds returned by this package. Returned errors wrap one of these with context and
// can be matched with errors.Is.
var (
	// ErrMalformedDocument is returned when an annotation document lacks a required field or has a
	// non-numeric dimension or coordinate.
	ErrMalformedDocument = errors.New("malformed annotation document")

	// ErrIO is returned when the source directory, a document or the output cannot be accessed.
	ErrIO = errors.New("i/o failure")

	// ErrInvalidConfig is returned for empty or invalid configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// malformedf wraps ErrMalformedDocument with a formatted message.
func malformedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedDocument, format, args...)
}

// ioErrorf wraps ErrIO with the cause and a formatted message.
func ioErrorf(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(ErrIO, format+": %v", append(args, cause)...)
}

// IsMalformedDocument reports whether err is or wraps ErrMalformedDocument.
func IsMalformedDocument(err error) bool {
	return errors.Is(err, ErrMalformedDocument)
}
