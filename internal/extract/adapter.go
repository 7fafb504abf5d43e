package extract

import (
	"context"
	"errors"

	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/progress"
)

// StateWriter receives progress snapshots for a download.
type StateWriter interface {
	Set(id string, state progress.State)
}

// Options are the transcoding targets shared by every attempt.
type Options struct {
	Format       string
	AudioCodec   string
	AudioQuality string
}

// Result is the outcome of a successful attempt.
type Result struct {
	Title string
	Path  string
}

// Adapter drives an Extractor and translates its progress events into store updates.
type Adapter struct {
	extractor Extractor
	states    StateWriter
	opts      Options
}

// NewAdapter creates an Adapter. Empty options fall back to best audio transcoded to mp3.
func NewAdapter(extractor Extractor, states StateWriter, opts Options) *Adapter {
	if opts.Format == "" {
		opts.Format = "bestaudio/best"
	}

	if opts.AudioCodec == "" {
		opts.AudioCodec = "mp3"
	}

	return &Adapter{extractor: extractor, states: states, opts: opts}
}

// Extension is the file extension of every produced file.
func (a *Adapter) Extension() string {
	return CodecExtension(a.opts.AudioCodec)
}

// Run performs one extraction attempt for downloadID using profile. It blocks until the
// extractor returns. Failures are always *ExtractionFailedError.
func (a *Adapter) Run(ctx context.Context, sourceURL, outputTemplate, downloadID string, profile Profile) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", downloadID, "profile", profile.Name)

	req := Request{
		URL:            sourceURL,
		OutputTemplate: outputTemplate,
		Format:         a.opts.Format,
		AudioCodec:     a.opts.AudioCodec,
		AudioQuality:   a.opts.AudioQuality,
		Profile:        profile,
	}

	var title string

	hook := func(ev Event) {
		if ev.Title != "" {
			title = ev.Title
		}

		switch ev.Status {
		case EventDownloading:
			a.states.Set(downloadID, progress.State{
				Progress: Percent(ev.DownloadedBytes, ev.TotalBytes),
				Status:   progress.StatusDownloading,
				Title:    title,
			})
		case EventFinished:
			logger.Debug("source fetched, converting")

			a.states.Set(downloadID, progress.State{
				Progress: 100,
				Status:   progress.StatusConverting,
				Title:    title,
			})
		}
	}

	info, err := a.extractor.Extract(ctx, req, hook)
	if err != nil {
		var failed *ExtractionFailedError
		if errors.As(err, &failed) {
			return nil, failed
		}

		return nil, &ExtractionFailedError{Message: err.Error(), Err: err}
	}

	if info != nil && info.Title != "" {
		title = info.Title
	}

	return &Result{
		Title: title,
		Path:  req.OutputPath(a.Extension()),
	}, nil
}

// Percent is downloaded/total as a percentage, or 0 when the total is unknown.
func Percent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}

	p := float64(downloaded) / float64(total) * 100
	if p > 100 {
		return 100
	}

	return p
}

// CodecExtension maps an audio codec to the extension yt-dlp gives its output.
func CodecExtension(codec string) string {
	switch codec {
	case "vorbis":
		return "ogg"
	case "alac":
		return "m4a"
	default:
		return codec
	}
}

// ContentType is the media type of files produced for codec.
func ContentType(codec string) string {
	switch codec {
	case "mp3":
		return "audio/mpeg"
	case "m4a", "alac":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	case "opus":
		return "audio/opus"
	case "vorbis":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
