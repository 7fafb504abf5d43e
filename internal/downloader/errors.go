package downloader

import (
	"fmt"
	"strings"

	"github.com/italolelis/media_toolbox/internal/extract"
)

// OutputMissingError means extraction reported success but the expected file is absent.
type OutputMissingError struct {
	Path  string
	Codec string
	Err   error
}

func (e *OutputMissingError) Error() string {
	return fmt.Sprintf("output file %s not found after download: %v", e.Path, e.Err)
}

func (e *OutputMissingError) Unwrap() error {
	return e.Err
}

// Message is the user facing explanation, e.g. "MP3 file not found after download."
func (e *OutputMissingError) Message() string {
	codec := e.Codec
	if codec == "" {
		codec = "mp3"
	}

	return strings.ToUpper(extract.CodecExtension(codec)) + " file not found after download."
}
