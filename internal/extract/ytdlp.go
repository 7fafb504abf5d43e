package extract

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/italolelis/media_toolbox/internal/logctx"
)

const (
	progressPrefix = "[progress]"
	titlePrefix    = "[title]"
	errorPrefix    = "ERROR:"
	notAvailable   = "NA"

	progressTemplate = "download:" + progressPrefix +
		"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(info.title)s"
	titleTemplate = "after_move:" + titlePrefix + "%(title)s"
)

// YTDLP runs the yt-dlp binary as the extraction operation.
type YTDLP struct {
	binary         string
	ffmpegLocation string
	runner         CommandRunner
}

// YTDLPOption is a functional option for configuring YTDLP.
type YTDLPOption func(*YTDLP)

// WithBinary sets the yt-dlp executable path.
func WithBinary(path string) YTDLPOption {
	return func(y *YTDLP) {
		y.binary = path
	}
}

// WithFFmpegLocation points yt-dlp to a specific ffmpeg binary or directory.
func WithFFmpegLocation(path string) YTDLPOption {
	return func(y *YTDLP) {
		y.ffmpegLocation = path
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) YTDLPOption {
	return func(y *YTDLP) {
		y.runner = runner
	}
}

// NewYTDLP creates a yt-dlp backed Extractor.
func NewYTDLP(opts ...YTDLPOption) *YTDLP {
	y := &YTDLP{
		binary: "yt-dlp",
		runner: &ExecCommandRunner{},
	}

	for _, opt := range opts {
		opt(y)
	}

	return y
}

// Extract implements Extractor.
func (y *YTDLP) Extract(ctx context.Context, req Request, hook func(Event)) (*Info, error) {
	logger := logctx.LoggerFromContext(ctx).With("profile", req.Profile.Name)

	args := y.buildArgs(req)
	logger.Debug("executing yt-dlp", "binary", y.binary, "args", strings.Join(args, " "))

	var (
		info       Info
		errLines   []string
		lastStderr string
	)

	onLine := func(stream, line string) {
		switch {
		case strings.HasPrefix(line, progressPrefix):
			if ev, ok := parseProgressLine(line); ok {
				hook(ev)
			}
		case strings.HasPrefix(line, titlePrefix):
			info.Title = strings.TrimPrefix(line, titlePrefix)
		case strings.HasPrefix(line, errorPrefix):
			errLines = append(errLines, strings.TrimSpace(strings.TrimPrefix(line, errorPrefix)))
		case stream == Stderr:
			lastStderr = line
		}
	}

	if err := y.runner.Stream(ctx, onLine, y.binary, args...); err != nil {
		message := strings.Join(errLines, "; ")
		if message == "" {
			message = lastStderr
		}

		if message == "" {
			message = err.Error()
		}

		return nil, &ExtractionFailedError{Message: message, Err: err}
	}

	if len(errLines) > 0 {
		// yt-dlp exited cleanly but reported errors, e.g. a failed post-processor.
		return nil, &ExtractionFailedError{
			Message: strings.Join(errLines, "; "),
			Err:     errors.New("yt-dlp reported errors"),
		}
	}

	return &info, nil
}

func (y *YTDLP) buildArgs(req Request) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
		"--progress-template", progressTemplate,
		"--print", titleTemplate,
		"-f", req.Format,
		"-x",
		"--audio-format", req.AudioCodec,
		"-o", req.OutputTemplate,
	}

	if req.AudioQuality != "" {
		args = append(args, "--audio-quality", audioQuality(req.AudioQuality))
	}

	if y.ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", y.ffmpegLocation)
	}

	args = append(args, profileArgs(req.Profile)...)

	return append(args, "--", req.URL)
}

func profileArgs(p Profile) []string {
	var args []string

	if p.UserAgent != "" {
		args = append(args, "--user-agent", p.UserAgent)
	}

	for _, name := range sortedKeys(p.Headers) {
		args = append(args, "--add-header", name+":"+p.Headers[name])
	}

	for _, extractor := range sortedKeys(p.ExtractorArgs) {
		hints := p.ExtractorArgs[extractor]

		pairs := make([]string, 0, len(hints))
		for _, key := range sortedKeys(hints) {
			pairs = append(pairs, key+"="+strings.Join(hints[key], ","))
		}

		args = append(args, "--extractor-args", extractor+":"+strings.Join(pairs, ";"))
	}

	if p.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(p.Retries))
	}

	if p.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.FormatFloat(p.SocketTimeout.Seconds(), 'f', -1, 64))
	}

	if p.NoCheckCertificate {
		args = append(args, "--no-check-certificates")
	}

	return args
}

// audioQuality turns a bare bitrate such as "192" into yt-dlp's "192K".
func audioQuality(q string) string {
	if _, err := strconv.Atoi(q); err == nil {
		return q + "K"
	}

	return q
}

// parseProgressLine parses a line produced by progressTemplate.
func parseProgressLine(line string) (Event, bool) {
	fields := strings.SplitN(strings.TrimPrefix(line, progressPrefix), "|", 4)
	if len(fields) != 4 {
		return Event{}, false
	}

	ev := Event{
		Status:          EventStatus(fields[0]),
		DownloadedBytes: parseBytes(fields[1]),
		TotalBytes:      parseBytes(fields[2]),
	}

	if title := fields[3]; title != notAvailable {
		ev.Title = title
	}

	switch ev.Status {
	case EventDownloading, EventFinished:
		return ev, true
	default:
		return Event{}, false
	}
}

// parseBytes accepts integers and floats (yt-dlp reports estimates as floats); NA yields 0.
func parseBytes(s string) int64 {
	if s == "" || s == notAvailable {
		return 0
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return int64(f)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
