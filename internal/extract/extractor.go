package extract

import (
	"context"
	"strings"
	"time"
)

// ExtPlaceholder is replaced by the concrete file extension in an output template.
const ExtPlaceholder = "%(ext)s"

// EventStatus is the kind of a progress event reported by an Extractor.
type EventStatus string

const (
	// EventDownloading is reported repeatedly while the source is fetched.
	EventDownloading EventStatus = "downloading"
	// EventFinished is reported once the source is fetched and transcoding is about to start.
	EventFinished EventStatus = "finished"
)

// Event is a single progress callback from an Extractor.
type Event struct {
	Status          EventStatus
	DownloadedBytes int64
	// TotalBytes is zero when the size is unknown.
	TotalBytes int64
	// Title is empty when the event does not carry one.
	Title string
}

// Profile is the set of network and anti-detection options passed verbatim to the extractor.
type Profile struct {
	Name      string            `yaml:"name"`
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
	// ExtractorArgs are per-extractor client hints, e.g. {"youtube": {"player_client": ["android"]}}.
	ExtractorArgs      map[string]map[string][]string `yaml:"extractor_args"`
	SocketTimeout      time.Duration                  `yaml:"socket_timeout"`
	Retries            int                            `yaml:"retries"`
	NoCheckCertificate bool                           `yaml:"no_check_certificate"`
}

// Request describes one extraction.
type Request struct {
	URL string
	// OutputTemplate must contain ExtPlaceholder.
	OutputTemplate string
	Format         string
	AudioCodec     string
	AudioQuality   string
	Profile        Profile
}

// OutputPath resolves the output template for the given extension.
func (r Request) OutputPath(ext string) string {
	return ResolveTemplate(r.OutputTemplate, ext)
}

// ResolveTemplate replaces the extension placeholder in template.
func ResolveTemplate(template, ext string) string {
	return strings.ReplaceAll(template, ExtPlaceholder, ext)
}

// Info is the metadata returned by a successful extraction.
type Info struct {
	Title string
}

// Extractor fetches a remote media source and transcodes it to audio. hook is invoked
// synchronously for every progress event.
type Extractor interface {
	Extract(ctx context.Context, req Request, hook func(Event)) (*Info, error)
}
