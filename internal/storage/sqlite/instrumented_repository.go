package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/media_toolbox/internal/storage"
	"github.com/italolelis/media_toolbox/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

// TrackDownload records a produced file with telemetry.
func (r *InstrumentedDownloadRepository) TrackDownload(ctx context.Context, rec storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_download", func(ctx context.Context) error {
		return r.repo.TrackDownload(ctx, rec)
	})
}

// GetDownloads retrieves downloads with telemetry.
func (r *InstrumentedDownloadRepository) GetDownloads(ctx context.Context, instanceID, status string) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownloads(ctx, instanceID, status)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateDownloadStatus updates a record status with telemetry.
func (r *InstrumentedDownloadRepository) UpdateDownloadStatus(ctx context.Context, filePath, status string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_download_status", func(ctx context.Context) error {
		return r.repo.UpdateDownloadStatus(ctx, filePath, status)
	})
}
