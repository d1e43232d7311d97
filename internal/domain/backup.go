package domain

import (
	"context"
	"fmt"
	"time"
)

type BackupStatus string

const (
	StatusPending   BackupStatus = "Pending"
	StatusRunning   BackupStatus = "Running"
	StatusSucceeded BackupStatus = "Succeeded"
	StatusFailed    BackupStatus = "Failed"
)

func (s BackupStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// BackupRecord describes one backup attempt. ConnectionName is a label copied
// from the profile, so deleting the profile leaves history intact.
type BackupRecord struct {
	ConnectionName string
	Engine         Engine
	Status         BackupStatus
	FilePath       string
	FileSizeBytes  int64
	ErrorMessage   string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

// NewBackupRecord starts a record in Pending.
func NewBackupRecord(connection string, engine Engine, createdAt time.Time) *BackupRecord {
	return &BackupRecord{
		ConnectionName: connection,
		Engine:         engine,
		Status:         StatusPending,
		CreatedAt:      createdAt,
	}
}

// MarkRunning moves Pending to Running.
func (r *BackupRecord) MarkRunning() error {
	if r.Status != StatusPending {
		return fmt.Errorf("backup record: cannot move from %s to %s", r.Status, StatusRunning)
	}
	r.Status = StatusRunning
	return nil
}

// Succeed finalizes the record with the artifact location and size.
func (r *BackupRecord) Succeed(filePath string, size int64, at time.Time) error {
	if r.Status != StatusRunning {
		return fmt.Errorf("backup record: cannot move from %s to %s", r.Status, StatusSucceeded)
	}
	r.Status = StatusSucceeded
	r.FilePath = filePath
	r.FileSizeBytes = size
	r.ErrorMessage = ""
	r.CompletedAt = at
	return nil
}

// Fail finalizes the record with a message. A failure before the process
// started is allowed straight from Pending.
func (r *BackupRecord) Fail(message string, at time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("backup record: cannot move from %s to %s", r.Status, StatusFailed)
	}
	r.Status = StatusFailed
	r.FileSizeBytes = 0
	r.ErrorMessage = message
	r.CompletedAt = at
	return nil
}

// HistoryStore keeps backup records.
type HistoryStore interface {
	Append(ctx context.Context, record BackupRecord) error
	// EnumerateByConnection returns records ordered by CreatedAt. Unknown
	// names yield an empty slice.
	EnumerateByConnection(ctx context.Context, name string) ([]BackupRecord, error)
}
