package usecase

import (
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// UploadTarget is a replication destination under a display name.
type UploadTarget struct {
	Name    string
	Storage domain.Storage
	// Compress gzips the artifact before it is sent to this target.
	Compress bool
}

// Recorder receives operation measurements. The metrics package implements it.
type Recorder interface {
	ObserveOperation(op domain.Operation, engine domain.Engine, result string, elapsed time.Duration)
	ObserveArtifact(engine domain.Engine, sizeBytes int64)
	ObserveUpload(target string, err error)
	ObserveDeletions(location string, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(domain.Operation, domain.Engine, string, time.Duration) {}
func (nopRecorder) ObserveArtifact(domain.Engine, int64)                                    {}
func (nopRecorder) ObserveUpload(string, error)                                             {}
func (nopRecorder) ObserveDeletions(string, int)                                            {}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// resultLabel turns an operation error into a metric label.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
