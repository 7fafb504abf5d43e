package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_toolbox/internal/storage"
)

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

// TrackDownload inserts a record. Tracking the same file twice refreshes the existing row.
func (r *DownloadRepository) TrackDownload(ctx context.Context, rec storage.DownloadRecord) error {
	status := rec.Status
	if status == "" {
		status = storage.StatusAvailable
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads (download_id, file_path, title, downloaded_at, status, instance_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			download_id = excluded.download_id,
			title = excluded.title,
			downloaded_at = excluded.downloaded_at,
			status = excluded.status,
			instance_id = excluded.instance_id`,
		rec.DownloadID, rec.FilePath, rec.Title, rec.DownloadedAt.UTC().Format(time.RFC3339), status, rec.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("failed to track download: %w", err)
	}

	return nil
}

func (r *DownloadRepository) GetDownloads(ctx context.Context, instanceID, status string) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT download_id, file_path, title, downloaded_at, status, instance_id
		FROM downloads
		WHERE instance_id = ? AND status = ?
		ORDER BY downloaded_at`, instanceID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		var (
			record       storage.DownloadRecord
			title        sql.NullString
			downloadedAt string
		)

		if err := rows.Scan(&record.DownloadID, &record.FilePath, &title, &downloadedAt, &record.Status, &record.InstanceID); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}

		record.Title = title.String

		// A malformed timestamp leaves the zero time; cleanup falls back to the file's mtime.
		record.DownloadedAt, _ = time.Parse(time.RFC3339, downloadedAt)

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}

// UpdateDownloadStatus sets the status of the record for filePath.
func (r *DownloadRepository) UpdateDownloadStatus(ctx context.Context, filePath, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE downloads SET status = ? WHERE file_path = ?`, status, filePath)
	if err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}
