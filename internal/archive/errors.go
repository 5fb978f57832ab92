package archive

import "fmt"

// StructuralExtractionError means a field that identifies a work (id, title, date)
// is missing or malformed, the whole page is rejected.
type StructuralExtractionError struct {
	// Listing is the 0-based position of the work listing on the page.
	Listing  int
	Field    string
	Selector string
	Reason   string
	Err      error
}

func (e *StructuralExtractionError) Error() string {
	msg := fmt.Sprintf(
		"listing %d: field %q (%s): %s",
		e.Listing, e.Field, e.Selector, e.Reason,
	)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructuralExtractionError) Unwrap() error {
	return e.Err
}

// FieldParseError means an optional field was present but its text could not be parsed,
// a missing optional field is never an error.
type FieldParseError struct {
	Listing  int
	Field    string
	Selector string
	Text     string
	Err      error
}

func (e *FieldParseError) Error() string {
	msg := fmt.Sprintf(
		"listing %d: field %q (%s): cannot parse %q",
		e.Listing, e.Field, e.Selector, e.Text,
	)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}
