package domain

import (
	"context"
	"time"
)

// Storage is a destination artifacts are replicated to after a successful backup.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

// Notifier is implemented by targets that can also deliver plain messages,
// used to report failed backups.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
