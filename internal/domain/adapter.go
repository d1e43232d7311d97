package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// ArtifactTimeLayout is the timestamp layout embedded in artifact names.
const ArtifactTimeLayout = "20060102_150405"

// ArtifactName returns {name}_{yyyyMMdd_HHmmss}.{ext}.
func ArtifactName(connection string, engine Engine, ts time.Time) string {
	return fmt.Sprintf("%s_%s.%s", connection, ts.Format(ArtifactTimeLayout), engine.Extension())
}

var artifactStamp = regexp.MustCompile(`_(\d{8}_\d{6})\.`)

// ParseArtifactTime recovers the creation time from an artifact name,
// compressed or not. Names not produced by ArtifactName report false.
func ParseArtifactTime(name string) (time.Time, bool) {
	matches := artifactStamp.FindAllStringSubmatch(name, -1)
	if len(matches) == 0 {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(ArtifactTimeLayout, matches[len(matches)-1][1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ProgressFunc receives one line of tool output at a time. ctx ends when the
// operation is cancelled or times out; a sink that blocks must give up then.
type ProgressFunc func(ctx context.Context, line string)

type DumpRequest struct {
	Profile   ConnectionProfile
	Directory string
	Timestamp time.Time
}

type DumpOutcome struct {
	FilePath  string
	SizeBytes int64
}

// Adapter holds everything engine specific. Implementations must be safe for
// concurrent use on different profiles.
type Adapter interface {
	Engine() Engine
	// TestConnection reports false for unreachable or rejected connections and
	// only errors on malformed profiles.
	TestConnection(ctx context.Context, profile ConnectionProfile) (bool, error)
	Dump(ctx context.Context, req DumpRequest, progress ProgressFunc) (DumpOutcome, error)
	Restore(ctx context.Context, profile ConnectionProfile, sourcePath string, progress ProgressFunc) error
}

type Operation string

const (
	OperationBackup  Operation = "backup"
	OperationRestore Operation = "restore"
)

// ProgressEvent is one line of output delivered to a caller.
type ProgressEvent struct {
	Connection string
	Operation  Operation
	Line       string
	Time       time.Time
}
