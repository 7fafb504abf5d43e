package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/media_toolbox/internal/extract"
	"github.com/italolelis/media_toolbox/internal/progress"
	"github.com/italolelis/media_toolbox/internal/retry"
	"github.com/italolelis/media_toolbox/internal/storage"
	"github.com/stretchr/testify/require"
)

var audioBytes = []byte("ID3 not really an mp3")

// scriptedExtractor runs one script per attempt.
type scriptedExtractor struct {
	mu       sync.Mutex
	scripts  []func(req extract.Request, hook func(extract.Event)) (*extract.Info, error)
	requests []extract.Request
	ctxErrs  []error
}

func (s *scriptedExtractor) Extract(ctx context.Context, req extract.Request, hook func(extract.Event)) (*extract.Info, error) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	return s.scripts[n](req, hook)
}

func (s *scriptedExtractor) profiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		names = append(names, r.Profile.Name)
	}

	return names
}

// recordingStore keeps every write and forwards it to a real store.
type recordingStore struct {
	*progress.Store

	mu     sync.Mutex
	writes []progress.State
}

func (r *recordingStore) Set(id string, state progress.State) {
	r.mu.Lock()
	r.writes = append(r.writes, state)
	r.mu.Unlock()

	r.Store.Set(id, state)
}

type fakeLedger struct {
	records []storage.DownloadRecord
}

func (f *fakeLedger) TrackDownload(_ context.Context, rec storage.DownloadRecord) error {
	f.records = append(f.records, rec)

	return nil
}

func (f *fakeLedger) UpdateDownloadStatus(context.Context, string, string) error {
	return nil
}

type fakeNotifier struct {
	messages chan string
}

func (f *fakeNotifier) Notify(_ context.Context, content string) error {
	f.messages <- content

	return nil
}

func succeed(title string, write bool, events ...extract.Event) func(extract.Request, func(extract.Event)) (*extract.Info, error) {
	return func(req extract.Request, hook func(extract.Event)) (*extract.Info, error) {
		for _, ev := range events {
			hook(ev)
		}

		if write {
			if err := os.WriteFile(req.OutputPath("mp3"), audioBytes, 0o600); err != nil {
				return nil, err
			}
		}

		return &extract.Info{Title: title}, nil
	}
}

func fail(message string) func(extract.Request, func(extract.Event)) (*extract.Info, error) {
	return func(extract.Request, func(extract.Event)) (*extract.Info, error) {
		return nil, &extract.ExtractionFailedError{Message: message, Err: errors.New("exit status 1")}
	}
}

type fixture struct {
	extractor *scriptedExtractor
	store     *recordingStore
	ledger    *fakeLedger
	notifier  *fakeNotifier
	dir       string
	d         *Downloader
}

func newFixture(t *testing.T, scripts ...func(extract.Request, func(extract.Event)) (*extract.Info, error)) *fixture {
	t.Helper()

	f := &fixture{
		extractor: &scriptedExtractor{scripts: scripts},
		store:     &recordingStore{Store: progress.NewStore()},
		ledger:    &fakeLedger{},
		notifier:  &fakeNotifier{messages: make(chan string, 1)},
		dir:       t.TempDir(),
	}

	adapter := extract.NewAdapter(f.extractor, f.store, extract.Options{AudioQuality: "192"})
	policy := retry.NewPolicy(adapter, f.store, extract.DefaultAlternateProfile(), nil)

	f.d = NewDownloader(adapter, policy, f.store, Config{
		OutputDir:  f.dir,
		AudioCodec: "mp3",
		Primary:    extract.DefaultPrimaryProfile(),
		InstanceID: "test-instance",
	},
		WithLedger(f.ledger),
		WithNotifier(f.notifier),
		WithFileIDGenerator(func() string { return "file-id" }),
	)

	return f
}

func (f *fixture) notification(t *testing.T) string {
	t.Helper()

	select {
	case msg := <-f.notifier.messages:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no notification sent")

		return ""
	}
}

func TestDownload_Succeeds(t *testing.T) {
	f := newFixture(t, succeed("My Song", true,
		extract.Event{Status: extract.EventDownloading, DownloadedBytes: 0, TotalBytes: 100, Title: "My Song"},
		extract.Event{Status: extract.EventDownloading, DownloadedBytes: 50, TotalBytes: 100},
		extract.Event{Status: extract.EventDownloading, DownloadedBytes: 100, TotalBytes: 100},
		extract.Event{Status: extract.EventFinished, DownloadedBytes: 100, TotalBytes: 100},
	))

	out, err := f.d.Download(context.Background(), "https://www.youtube.com/watch?v=x", "abc")
	require.NoError(t, err)

	require.Equal(t, &Output{
		Path:        filepath.Join(f.dir, "file-id.mp3"),
		Title:       "My Song",
		Filename:    "My Song.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(audioBytes)),
	}, out)

	require.Equal(t, []progress.State{
		{Progress: 0, Status: progress.StatusStarting},
		{Progress: 0, Status: progress.StatusDownloading, Title: "My Song"},
		{Progress: 50, Status: progress.StatusDownloading, Title: "My Song"},
		{Progress: 100, Status: progress.StatusDownloading, Title: "My Song"},
		{Progress: 100, Status: progress.StatusConverting, Title: "My Song"},
		{Progress: 100, Status: progress.StatusFinished, Title: "My Song"},
	}, f.store.writes)

	state, ok := f.store.Get("abc")
	require.True(t, ok)
	require.Equal(t, progress.StatusFinished, state.Status)

	require.Equal(t, []string{"primary"}, f.extractor.profiles())
	require.Equal(t, filepath.Join(f.dir, "file-id.%(ext)s"), f.extractor.requests[0].OutputTemplate)

	require.Len(t, f.ledger.records, 1)
	require.Equal(t, "abc", f.ledger.records[0].DownloadID)
	require.Equal(t, out.Path, f.ledger.records[0].FilePath)
	require.Equal(t, "test-instance", f.ledger.records[0].InstanceID)

	require.Contains(t, f.notification(t), "My Song")
}

func TestDownload_RetriesOnceAfterBotDetection(t *testing.T) {
	f := newFixture(t,
		fail("ERROR: [youtube] x: Sign in to confirm you're not a bot"),
		succeed("Retry Hit", true,
			extract.Event{Status: extract.EventDownloading, DownloadedBytes: 10, TotalBytes: 100, Title: "Retry Hit"},
			extract.Event{Status: extract.EventFinished, DownloadedBytes: 100, TotalBytes: 100},
		),
	)

	out, err := f.d.Download(context.Background(), "https://www.youtube.com/watch?v=x", "abc")
	require.NoError(t, err)
	require.Equal(t, "Retry Hit.mp3", out.Filename)

	require.Equal(t, []string{"primary", "alternate"}, f.extractor.profiles())

	retrying := -1
	finished := -1

	for i, s := range f.store.writes {
		switch s.Status {
		case progress.StatusRetrying:
			require.Equal(t, float64(retry.RetryProgress), s.Progress)
			retrying = i
		case progress.StatusFinished:
			finished = i
		}
	}

	require.GreaterOrEqual(t, retrying, 0, "retrying state never written")
	require.Greater(t, finished, retrying)
	f.notification(t)
}

func TestDownload_UnavailableIsNotRetried(t *testing.T) {
	f := newFixture(t, fail("ERROR: [youtube] x: Video unavailable"))

	_, err := f.d.Download(context.Background(), "https://www.youtube.com/watch?v=x", "abc")

	var failure *retry.Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, retry.CategoryUnavailable, failure.Category)
	require.Equal(t, http.StatusNotFound, failure.Category.HTTPStatus())

	require.Equal(t, []string{"primary"}, f.extractor.profiles())

	state, ok := f.store.Get("abc")
	require.True(t, ok)
	require.Equal(t, progress.State{Progress: 100, Status: progress.StatusError}, state)

	require.Empty(t, f.ledger.records)
	require.Contains(t, f.notification(t), "unavailable")
}

func TestDownload_OutputMissing(t *testing.T) {
	f := newFixture(t, succeed("Ghost", false))

	_, err := f.d.Download(context.Background(), "https://example.com/v", "abc")

	var missing *OutputMissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "MP3 file not found after download.", missing.Message())
	require.ErrorIs(t, err, os.ErrNotExist)

	state, _ := f.store.Get("abc")
	require.Equal(t, progress.StatusError, state.Status)
	f.notification(t)
}

func TestDownload_DefaultTitle(t *testing.T) {
	f := newFixture(t, succeed("", true))

	out, err := f.d.Download(context.Background(), "https://example.com/v", "abc")
	require.NoError(t, err)
	require.Equal(t, "audio.mp3", out.Filename)

	state, _ := f.store.Get("abc")
	require.Equal(t, progress.State{Progress: 100, Status: progress.StatusFinished, Title: "audio"}, state)
	f.notification(t)
}

func TestDownload_ClientCancellationDoesNotAbortExtraction(t *testing.T) {
	f := newFixture(t, succeed("My Song", true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.d.Download(ctx, "https://example.com/v", "abc")
	require.NoError(t, err)
	require.Equal(t, []error{nil}, f.extractor.ctxErrs)
	f.notification(t)
}

func TestDownload_WithoutOptionalCollaborators(t *testing.T) {
	extractor := &scriptedExtractor{scripts: []func(extract.Request, func(extract.Event)) (*extract.Info, error){
		succeed("Bare", true),
	}}
	store := progress.NewStore()
	adapter := extract.NewAdapter(extractor, store, extract.Options{})
	policy := retry.NewPolicy(adapter, store, extract.DefaultAlternateProfile(), nil)

	d := NewDownloader(adapter, policy, store, Config{OutputDir: t.TempDir()})

	out, err := d.Download(context.Background(), "https://example.com/v", "abc")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out.Path, ".mp3"))
}

func TestSend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.mp3")
	require.NoError(t, os.WriteFile(path, audioBytes, 0o600))

	var buf bytes.Buffer

	n, err := Send(context.Background(), &buf, &Output{Path: path, Size: int64(len(audioBytes))})
	require.NoError(t, err)
	require.Equal(t, int64(len(audioBytes)), n)
	require.Equal(t, audioBytes, buf.Bytes())

	_, err = Send(context.Background(), &buf, &Output{Path: filepath.Join(t.TempDir(), "missing.mp3")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestProgressReader_ReportsAtIntervalAndFivePercent(t *testing.T) {
	var reports []int64

	data := bytes.Repeat([]byte("a"), 1000)
	pr := newProgressReader(bytes.NewReader(data), 1000, 400, func(read, _ int64) {
		reports = append(reports, read)
	})

	buf := make([]byte, 100)
	for {
		_, err := pr.Read(buf)
		if err != nil {
			break
		}
	}

	require.Equal(t, []int64{100, 500, 900}, reports)
}
