package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Cleanup enforces retention on the backup root and every upload target.
// History records are kept; only artifacts are removed.
type Cleanup struct {
	root          UploadTarget
	uploadTargets []UploadTarget
	logger        Logger
	retentionDays int
	metrics       Recorder
	now           func() time.Time
}

func NewCleanup(
	root domain.Storage,
	uploadTargets []UploadTarget,
	logger Logger,
	retentionDays int,
	metrics Recorder,
) *Cleanup {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Cleanup{
		root:          UploadTarget{Name: "backup root", Storage: root},
		uploadTargets: uploadTargets,
		logger:        logger,
		retentionDays: retentionDays,
		metrics:       metrics,
		now:           time.Now,
	}
}

// CleanupReport maps each location to the artifacts removed from it.
type CleanupReport map[string][]string

func (r CleanupReport) Total() int {
	n := 0
	for _, files := range r {
		n += len(files)
	}
	return n
}

// Execute is the scheduler entry point.
func (uc *Cleanup) Execute(ctx context.Context) error {
	_, err := uc.Run(ctx)
	return err
}

// Run deletes artifacts older than the retention window. A retention of zero
// days disables cleanup. Per location failures are logged and do not stop
// the others.
func (uc *Cleanup) Run(ctx context.Context) (CleanupReport, error) {
	report := CleanupReport{}
	if uc.retentionDays <= 0 {
		uc.logger.Infof("Retention disabled, nothing to clean up")
		return report, nil
	}

	uc.logger.Infof("Starting cleanup, retention: %d days", uc.retentionDays)
	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)

	locations := uc.uploadTargets
	if uc.root.Storage != nil {
		locations = append([]UploadTarget{uc.root}, uc.uploadTargets...)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, target := range locations {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			deleted, err := uc.cleanupTarget(ctx, t, cutoff)
			uc.metrics.ObserveDeletions(t.Name, len(deleted))
			mu.Lock()
			defer mu.Unlock()
			if len(deleted) > 0 {
				report[t.Name] = deleted
			}
			if err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
				failed = append(failed, t.Name)
			}
		}(target)
	}
	wg.Wait()

	uc.logger.Infof("Cleanup completed, %d artifact(s) removed", report.Total())
	if len(failed) > 0 {
		sort.Strings(failed)
		return report, fmt.Errorf("cleanup failed for %v", failed)
	}
	return report, nil
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target UploadTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Storage.GetOldFiles(ctx, cutoff)
	if err != nil {
		uc.logger.Warnf("Listing old files on %s failed, falling back to names: %v", target.Name, err)
		files, err = uc.fallbackListFiles(ctx, target, cutoff)
		if err != nil {
			return nil, err
		}
	}

	var deleted []string
	for _, filename := range files {
		uc.logger.Infof("Deleting old backup from %s: %s", target.Name, filename)

		if err := target.Storage.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("Failed to delete %s from %s: %v", filename, target.Name, err)
			continue
		}
		deleted = append(deleted, filename)
	}

	return deleted, nil
}

func (uc *Cleanup) fallbackListFiles(ctx context.Context, target UploadTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	oldFiles := make([]string, 0)
	for _, filename := range files {
		timestamp, ok := domain.ParseArtifactTime(filename)
		if !ok {
			uc.logger.Warnf("Could not parse timestamp from %s", filename)
			continue
		}

		if timestamp.Before(cutoff) {
			oldFiles = append(oldFiles, filename)
		}
	}

	return oldFiles, nil
}
