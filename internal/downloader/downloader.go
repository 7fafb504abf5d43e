package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/media_toolbox/internal/extract"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/notifier"
	"github.com/italolelis/media_toolbox/internal/progress"
	"github.com/italolelis/media_toolbox/internal/retry"
	"github.com/italolelis/media_toolbox/internal/storage"
	"github.com/italolelis/media_toolbox/internal/telemetry"
)

// DefaultTitle names files whose source title is unknown.
const DefaultTitle = "audio"

const notifyTimeout = 15 * time.Second

// Recoverer handles a failed first attempt.
type Recoverer interface {
	Recover(ctx context.Context, attempt retry.Attempt, cause error) (*extract.Result, error)
}

// Config holds the per-process download settings.
type Config struct {
	OutputDir  string
	AudioCodec string
	Primary    extract.Profile
	InstanceID string
}

// Output is a finished audio file ready to be sent to the client.
type Output struct {
	Path        string
	Title       string
	Filename    string
	ContentType string
	Size        int64
}

// Option configures optional collaborators.
type Option func(*Downloader)

// WithLedger records every produced file so it can be expired later.
func WithLedger(ledger storage.DownloadWriteRepository) Option {
	return func(d *Downloader) {
		d.ledger = ledger
	}
}

// WithNotifier announces finished and failed downloads.
func WithNotifier(n notifier.Notifier) Option {
	return func(d *Downloader) {
		d.notifier = n
	}
}

// WithTelemetry instruments downloads.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Downloader) {
		d.telemetry = tel
	}
}

// WithFileIDGenerator replaces the generator of output file names.
func WithFileIDGenerator(newID func() string) Option {
	return func(d *Downloader) {
		d.newID = newID
	}
}

// Downloader orchestrates one audio download: the primary attempt, the recovery policy,
// output verification and bookkeeping.
type Downloader struct {
	runner    retry.Runner
	recoverer Recoverer
	states    extract.StateWriter
	cfg       Config

	ledger    storage.DownloadWriteRepository
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry
	newID     func() string
}

func NewDownloader(runner retry.Runner, recoverer Recoverer, states extract.StateWriter, cfg Config, opts ...Option) *Downloader {
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = "mp3"
	}

	d := &Downloader{
		runner:    runner,
		recoverer: recoverer,
		states:    states,
		cfg:       cfg,
		newID:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Download converts sourceURL into an audio file, reporting progress under downloadID.
// It blocks until the file exists or the download failed. Client cancellation does not
// abort an extraction in flight. Failures are *retry.Failure or *OutputMissingError.
func (d *Downloader) Download(ctx context.Context, sourceURL, downloadID string) (*Output, error) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", downloadID)
	ctx = logctx.WithLogger(context.WithoutCancel(ctx), logger)

	start := time.Now()

	var out *Output

	err := d.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error

		out, err = d.download(ctx, sourceURL, downloadID)

		return err
	})

	d.telemetry.RecordDownload(ctx, outcomeOf(err), time.Since(start))
	d.notify(ctx, sourceURL, out, err)

	if err != nil {
		logger.Error("download failed", "err", err, "elapsed", time.Since(start).String())

		return nil, err
	}

	logger.Info("download finished",
		"title", out.Title,
		"file_path", out.Path,
		"file_size", humanize.Bytes(uint64(out.Size)),
		"elapsed", time.Since(start).String(),
	)

	return out, nil
}

func (d *Downloader) download(ctx context.Context, sourceURL, downloadID string) (*Output, error) {
	logger := logctx.LoggerFromContext(ctx)

	d.states.Set(downloadID, progress.Starting())

	attempt := retry.Attempt{
		SourceURL:      sourceURL,
		OutputTemplate: filepath.Join(d.cfg.OutputDir, d.newID()+"."+extract.ExtPlaceholder),
		DownloadID:     downloadID,
	}

	logger.Debug("starting extraction", "output_template", attempt.OutputTemplate)

	res, err := d.runner.Run(ctx, attempt.SourceURL, attempt.OutputTemplate, downloadID, d.cfg.Primary)
	if err != nil {
		logger.Warn("primary attempt failed", "err", err)

		res, err = d.recoverer.Recover(ctx, attempt, err)
		if err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		d.states.Set(downloadID, progress.State{Progress: 100, Status: progress.StatusError})

		return nil, &OutputMissingError{Path: res.Path, Codec: d.cfg.AudioCodec, Err: err}
	}

	title := res.Title
	if title == "" {
		title = DefaultTitle
	}

	d.states.Set(downloadID, progress.State{Progress: 100, Status: progress.StatusFinished, Title: title})

	d.track(ctx, storage.DownloadRecord{
		DownloadID:   downloadID,
		FilePath:     res.Path,
		Title:        title,
		DownloadedAt: time.Now(),
		InstanceID:   d.cfg.InstanceID,
	})

	return &Output{
		Path:        res.Path,
		Title:       title,
		Filename:    SanitizeTitle(title) + "." + extract.CodecExtension(d.cfg.AudioCodec),
		ContentType: extract.ContentType(d.cfg.AudioCodec),
		Size:        info.Size(),
	}, nil
}

// track is best effort; a ledger failure only means the file outlives its retention.
func (d *Downloader) track(ctx context.Context, rec storage.DownloadRecord) {
	if d.ledger == nil {
		return
	}

	if err := d.ledger.TrackDownload(ctx, rec); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to track produced file", "file_path", rec.FilePath, "err", err)
	}
}

func (d *Downloader) notify(ctx context.Context, sourceURL string, out *Output, err error) {
	if d.notifier == nil {
		return
	}

	var content string
	if err != nil {
		content = fmt.Sprintf("❌ Download failed (%s): %s", outcomeOf(err), sourceURL)
	} else {
		content = fmt.Sprintf("✅ Download finished: %s (%s)", out.Title, humanize.Bytes(uint64(out.Size)))
	}

	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if notifyErr := d.notifier.Notify(ctx, content); notifyErr != nil {
			logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", notifyErr)
		}
	}()
}

// outcomeOf is the bounded label describing how a download ended.
func outcomeOf(err error) string {
	var (
		failure *retry.Failure
		missing *OutputMissingError
	)

	switch {
	case err == nil:
		return "finished"
	case errors.As(err, &failure):
		return string(failure.Category)
	case errors.As(err, &missing):
		return "output_missing"
	default:
		return "error"
	}
}
