package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/storage"
)

// DeleteExpiredFiles removes the audio files this instance produced more than keepDuration
// ago and marks their records deleted. Files already gone are only marked. It returns the
// number of records retired.
func DeleteExpiredFiles(ctx context.Context, repo storage.DownloadRepository, instanceID string, keepDuration time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := repo.GetDownloads(ctx, instanceID, storage.StatusAvailable)
	if err != nil {
		return 0, fmt.Errorf("failed to list tracked downloads: %w", err)
	}

	var (
		retired int
		freed   uint64
	)

	for _, rec := range records {
		info, err := os.Stat(rec.FilePath)

		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Nothing to delete anymore.
		case err != nil:
			logger.Error("failed to stat file", "file", rec.FilePath, "err", err)

			return retired, err
		default:
			downloadedAt := rec.DownloadedAt
			if downloadedAt.IsZero() {
				logger.Warn("missing download time, using file mod time", "file", rec.FilePath)

				downloadedAt = info.ModTime()
			}

			if now.Sub(downloadedAt) <= keepDuration {
				continue
			}

			if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Error("failed to delete expired file", "file", rec.FilePath, "err", err)

				return retired, err
			}

			freed += uint64(info.Size())

			logger.Info("deleted expired file", "file", rec.FilePath, "download_id", rec.DownloadID)
		}

		if err := repo.UpdateDownloadStatus(ctx, rec.FilePath, storage.StatusDeleted); err != nil {
			return retired, fmt.Errorf("failed to mark %s deleted: %w", rec.FilePath, err)
		}

		retired++
	}

	if retired > 0 {
		logger.Info("cleanup finished", "retired", retired, "freed", humanize.Bytes(freed))
	}

	return retired, nil
}

// Run calls DeleteExpiredFiles on every tick until ctx is done. Failures are logged and
// reported to onError, which may be nil.
func Run(ctx context.Context, repo storage.DownloadRepository, instanceID string, keepDuration, interval time.Duration, onError func(error)) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup loop shutting down")

			return nil
		case <-ticker.C:
			if _, err := DeleteExpiredFiles(ctx, repo, instanceID, keepDuration); err != nil {
				logger.Error("failed to delete expired files", "err", err)

				if onError != nil {
					onError(err)
				}
			}
		}
	}
}
