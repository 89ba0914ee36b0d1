// Package crawling discovers, selects and aggregates the pages of a company website.
package crawling

import "fmt"

// LinkExtractionError represents a failure in deriving candidate links
type LinkExtractionError struct {
	Message string
	Cause   error
}

func (e *LinkExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("link extraction error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("link extraction error: %s", e.Message)
}

func (e *LinkExtractionError) Unwrap() error {
	return e.Cause
}

// SelectionParseError means the model's link selection could not be parsed or
// did not match the expected shape. Resolve recovers from it with the heuristic.
type SelectionParseError struct {
	Message string
	Raw     string
	Cause   error
}

func (e *SelectionParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("selection parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("selection parse error: %s", e.Message)
}

func (e *SelectionParseError) Unwrap() error {
	return e.Cause
}
