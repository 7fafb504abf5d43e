package extract

import "fmt"

// ExtractionFailedError is returned when fetching or transcoding failed. Message carries the
// underlying error text verbatim so callers can classify it.
type ExtractionFailedError struct {
	Message string
	Err     error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Message)
}

func (e *ExtractionFailedError) Unwrap() error {
	return e.Err
}
