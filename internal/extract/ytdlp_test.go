package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedLine struct {
	stream string
	line   string
}

// fakeRunner replays output lines and records the invocation.
type fakeRunner struct {
	lines []scriptedLine
	err   error

	name string
	args []string
}

func (f *fakeRunner) Stream(_ context.Context, onLine LineFunc, name string, args ...string) error {
	f.name = name
	f.args = args

	for _, l := range f.lines {
		onLine(l.stream, l.line)
	}

	return f.err
}

func (f *fakeRunner) hasArgPair(flag, value string) bool {
	for i := 0; i < len(f.args)-1; i++ {
		if f.args[i] == flag && f.args[i+1] == value {
			return true
		}
	}

	return false
}

func testRequest() Request {
	return Request{
		URL:            "https://www.youtube.com/watch?v=abc",
		OutputTemplate: "/tmp/id.%(ext)s",
		Format:         "bestaudio/best",
		AudioCodec:     "mp3",
		AudioQuality:   "192",
		Profile:        DefaultPrimaryProfile(),
	}
}

func TestYTDLP_ParsesProgressAndTitle(t *testing.T) {
	runner := &fakeRunner{lines: []scriptedLine{
		{Stdout, "[youtube] abc: Downloading webpage"},
		{Stdout, "[progress]downloading|1024|4096|My Song"},
		{Stdout, "[progress]downloading|2048|NA|NA"},
		{Stdout, "[progress]finished|4096|4096|My | Song"},
		{Stdout, "[ExtractAudio] Destination: /tmp/id.mp3"},
		{Stdout, "[title]My Song"},
	}}

	y := NewYTDLP(WithBinary("/usr/bin/yt-dlp"), WithFFmpegLocation("/opt/ffmpeg"), WithCommandRunner(runner))

	var events []Event

	info, err := y.Extract(context.Background(), testRequest(), func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)
	require.Equal(t, "My Song", info.Title)

	require.Equal(t, []Event{
		{Status: EventDownloading, DownloadedBytes: 1024, TotalBytes: 4096, Title: "My Song"},
		{Status: EventDownloading, DownloadedBytes: 2048},
		{Status: EventFinished, DownloadedBytes: 4096, TotalBytes: 4096, Title: "My | Song"},
	}, events)

	require.Equal(t, "/usr/bin/yt-dlp", runner.name)
	require.True(t, runner.hasArgPair("-f", "bestaudio/best"))
	require.True(t, runner.hasArgPair("--audio-format", "mp3"))
	require.True(t, runner.hasArgPair("--audio-quality", "192K"))
	require.True(t, runner.hasArgPair("-o", "/tmp/id.%(ext)s"))
	require.True(t, runner.hasArgPair("--ffmpeg-location", "/opt/ffmpeg"))
	require.True(t, runner.hasArgPair("--retries", "3"))
	require.True(t, runner.hasArgPair("--socket-timeout", "30"))
	require.True(t, runner.hasArgPair("--add-header", "Accept-Language:en-us,en;q=0.5"))
	require.True(t, runner.hasArgPair("--extractor-args",
		"youtube:player_client=android;player_skip=webpage,configs;skip=dash,live"))
	require.Contains(t, runner.args, "--no-check-certificates")
	require.Equal(t, []string{"--", "https://www.youtube.com/watch?v=abc"}, runner.args[len(runner.args)-2:])
}

func TestYTDLP_FailureCarriesErrorLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []scriptedLine
		err   error
		want  string
	}{
		{
			name: "error lines win",
			lines: []scriptedLine{
				{Stderr, "WARNING: something odd"},
				{Stderr, "ERROR: [youtube] abc: Sign in to confirm you're not a bot. Use --cookies"},
			},
			err:  errors.New("exit status 1"),
			want: "[youtube] abc: Sign in to confirm you're not a bot. Use --cookies",
		},
		{
			name:  "last stderr line when no error prefix",
			lines: []scriptedLine{{Stderr, "Traceback (most recent call last):"}, {Stderr, "KeyError: 'title'"}},
			err:   errors.New("exit status 1"),
			want:  "KeyError: 'title'",
		},
		{
			name: "runner error when silent",
			err:  errors.New("exec: \"yt-dlp\": executable file not found in $PATH"),
			want: "exec: \"yt-dlp\": executable file not found in $PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := NewYTDLP(WithCommandRunner(&fakeRunner{lines: tt.lines, err: tt.err}))

			_, err := y.Extract(context.Background(), testRequest(), func(Event) {})

			var failed *ExtractionFailedError
			require.ErrorAs(t, err, &failed)
			require.Equal(t, tt.want, failed.Message)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestYTDLP_ErrorLinesWithCleanExit(t *testing.T) {
	y := NewYTDLP(WithCommandRunner(&fakeRunner{lines: []scriptedLine{
		{Stderr, "ERROR: Postprocessing: audio conversion failed"},
	}}))

	_, err := y.Extract(context.Background(), testRequest(), func(Event) {})

	var failed *ExtractionFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "Postprocessing: audio conversion failed", failed.Message)
}

func TestProfileArgs_Alternate(t *testing.T) {
	args := strings.Join(profileArgs(DefaultAlternateProfile()), " ")

	require.Contains(t, args, "--retries 10")
	require.Contains(t, args, "--socket-timeout 60")
	require.Contains(t, args, "--extractor-args youtube:player_client=ios,web_safari,mweb;player_skip=configs")
	require.Contains(t, args, "--add-header Referer:https://www.youtube.com/")
}

func TestProfileArgs_Empty(t *testing.T) {
	require.Empty(t, profileArgs(Profile{}))
	require.Equal(t, []string{"--socket-timeout", "1.5"}, profileArgs(Profile{SocketTimeout: 1500 * time.Millisecond}))
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want Event
	}{
		{line: "[progress]downloading|10|100|T", ok: true, want: Event{Status: EventDownloading, DownloadedBytes: 10, TotalBytes: 100, Title: "T"}},
		{line: "[progress]downloading|10.0|NA|NA", ok: true, want: Event{Status: EventDownloading, DownloadedBytes: 10}},
		{line: "[progress]error|0|0|T", ok: false},
		{line: "[progress]garbage", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseProgressLine(tt.line)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
