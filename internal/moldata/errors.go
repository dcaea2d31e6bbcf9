package moldata

import (
	"errors"
	"fmt"
)

var (
	// ErrDataNotFound indicates a species or data file that is neither
	// present locally nor retrievable from the catalog.
	ErrDataNotFound = errors.New("moldata: data not found")

	// ErrMalformedData indicates a file that ends before a required section
	// or carries an unparseable count or field.
	ErrMalformedData = errors.New("moldata: malformed data")
)

// ParseError wraps a parse failure with its position in the file.
type ParseError struct {
	Line    int
	Section string
	Msg     string
	Wrapped error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: %s, line %d: %s", e.Wrapped, e.Section, e.Line, e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Wrapped, e.Section, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}
