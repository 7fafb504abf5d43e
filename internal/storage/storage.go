package storage

import (
	"context"
	"errors"
	"time"
)

// Record statuses.
const (
	StatusAvailable = "available"
	StatusDeleted   = "deleted"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("download record not found")

// DownloadRecord is an audio file produced by this service.
type DownloadRecord struct {
	DownloadID   string
	FilePath     string
	Title        string
	DownloadedAt time.Time
	Status       string
	InstanceID   string
}

// DownloadReadRepository lists produced files.
type DownloadReadRepository interface {
	// GetDownloads returns the records with the given status produced by instanceID.
	GetDownloads(ctx context.Context, instanceID, status string) ([]DownloadRecord, error)
}

// DownloadWriteRepository records produced files and their lifecycle.
type DownloadWriteRepository interface {
	TrackDownload(ctx context.Context, record DownloadRecord) error
	UpdateDownloadStatus(ctx context.Context, filePath, status string) error
}

// DownloadRepository is the full ledger.
type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}
