package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Replicator copies finished artifacts to the configured upload targets.
// Failures are logged and counted; the backup they belong to still succeeded.
type Replicator struct {
	targets    []UploadTarget
	compressor domain.Compressor
	logger     Logger
	metrics    Recorder
}

func NewReplicator(targets []UploadTarget, compressor domain.Compressor, logger Logger, metrics Recorder) *Replicator {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Replicator{
		targets:    targets,
		compressor: compressor,
		logger:     logger,
		metrics:    metrics,
	}
}

func (r *Replicator) Targets() []UploadTarget {
	return r.targets
}

// Replicate uploads artifactPath to every target in parallel and returns the
// names of the targets that failed.
func (r *Replicator) Replicate(ctx context.Context, connection, artifactPath string) []string {
	if len(r.targets) == 0 {
		return nil
	}

	filename := filepath.Base(artifactPath)
	compressedPath, compressedName := "", ""
	if r.wantsCompression() {
		path, name, err := r.compress(connection, artifactPath)
		if err != nil {
			r.logger.Errorf("[%s] %v; sending uncompressed", connection, err)
		} else {
			compressedPath, compressedName = path, name
			defer os.RemoveAll(filepath.Dir(compressedPath))
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, target := range r.targets {
		path, name := artifactPath, filename
		if target.Compress && compressedPath != "" {
			path, name = compressedPath, compressedName
		}

		wg.Add(1)
		go func(t UploadTarget, path, name string) {
			defer wg.Done()

			start := time.Now()
			r.logger.Infof("[%s] Uploading %s to %s...", connection, name, t.Name)
			err := t.Storage.Upload(ctx, path, name)
			r.metrics.ObserveUpload(t.Name, err)
			if err != nil {
				r.logger.Errorf("[%s] Failed to upload to %s: %v", connection, t.Name, err)
				mu.Lock()
				failed = append(failed, t.Name)
				mu.Unlock()
				return
			}
			r.logger.Infof("[%s] Uploaded to %s in %s", connection, t.Name, time.Since(start).Round(time.Millisecond))
		}(target, path, name)
	}
	wg.Wait()

	return failed
}

func (r *Replicator) wantsCompression() bool {
	if r.compressor == nil {
		return false
	}
	for _, t := range r.targets {
		if t.Compress {
			return true
		}
	}
	return false
}

func (r *Replicator) compress(connection, artifactPath string) (string, string, error) {
	name := filepath.Base(artifactPath) + r.compressor.Extension()
	tmpDir, err := os.MkdirTemp("", "dbkeeper-replicate-")
	if err != nil {
		return "", "", fmt.Errorf("compression: %w", err)
	}
	path := filepath.Join(tmpDir, name)

	r.logger.Infof("[%s] Compressing %s...", connection, filepath.Base(artifactPath))
	if err := r.compressor.Compress(artifactPath, path); err != nil {
		os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("compression: %w", err)
	}

	original, _ := os.Stat(artifactPath)
	compressed, _ := os.Stat(path)
	if original != nil && compressed != nil && original.Size() > 0 {
		r.logger.Infof("[%s] Compression complete, size: %s (%.1f%% of original)",
			connection,
			humanize.IBytes(uint64(compressed.Size())),
			float64(compressed.Size())/float64(original.Size())*100)
	}

	return path, name, nil
}
