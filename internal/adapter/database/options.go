package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Logger is the subset of the application logger adapters use.
type Logger interface {
	Debugf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type Options struct {
	// Timeout bounds a single dump or restore.
	Timeout time.Duration
	// TestTimeout bounds a connectivity probe.
	TestTimeout time.Duration
	Logger      Logger
}

const defaultTestTimeout = 10 * time.Second

func (o Options) testTimeout() time.Duration {
	if o.TestTimeout > 0 {
		return o.TestTimeout
	}
	return defaultTestTimeout
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

func (o Options) logger() Logger {
	if o.Logger == nil {
		return nopLogger{}
	}
	return o.Logger
}

// artifactPath creates dir when needed and returns the artifact location.
func artifactPath(req domain.DumpRequest) (string, error) {
	// Profiles loaded from an older catalog never went through Validate.
	if err := domain.ValidateName(req.Profile.Name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(req.Directory, 0755); err != nil {
		return "", domain.NewError(domain.KindDumpFailed, req.Profile.Name,
			fmt.Sprintf("failed to create backup directory %s: %v", req.Directory, err), err)
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	path := filepath.Join(req.Directory, domain.ArtifactName(req.Profile.Name, req.Profile.Engine, ts))
	if _, err := os.Stat(path); err == nil {
		return "", domain.NewError(domain.KindDumpFailed, req.Profile.Name,
			fmt.Sprintf("artifact %s already exists", path), nil)
	}
	return path, nil
}

// finishDump checks what the tool left behind. Any failure removes the
// partial artifact.
func finishDump(profile domain.ConnectionProfile, path string, runErr error) (domain.DumpOutcome, error) {
	if runErr != nil {
		_ = os.Remove(path)
		return domain.DumpOutcome{}, runErr
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.DumpOutcome{}, domain.NewError(domain.KindDumpFailed, profile.Name,
			fmt.Sprintf("dump finished but artifact %s is missing: %v", path, err), err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return domain.DumpOutcome{}, domain.NewError(domain.KindDumpFailed, profile.Name,
			"dump produced an empty artifact", nil)
	}

	return domain.DumpOutcome{FilePath: path, SizeBytes: info.Size()}, nil
}

// checkSource runs before anything destructive happens.
func checkSource(profile domain.ConnectionProfile, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewError(domain.KindBackupFileNotFound, profile.Name,
			fmt.Sprintf("backup file not found: %s", path), err)
	}
	if info.IsDir() {
		return domain.NewError(domain.KindBackupFileNotFound, profile.Name,
			fmt.Sprintf("backup path is a directory: %s", path), nil)
	}
	if info.Size() == 0 {
		return domain.NewError(domain.KindRestoreFailed, profile.Name,
			fmt.Sprintf("backup file is empty: %s", path), nil)
	}
	return nil
}
