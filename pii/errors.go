package pii

import "errors"

var (
	// ErrInvalidArgument marks caller misuse, such as span collections that do not
	// line up with the values they annotate.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedShape marks input the traversal does not handle, such as mappings
	// nested inside sequences.
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrMalformedSpan marks a detection span whose offsets do not fit its text.
	ErrMalformedSpan = errors.New("malformed span")
)
