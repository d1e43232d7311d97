package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

// writeTool drops an executable shell script standing in for an engine tool.
func writeTool(dir, name, body string) string {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755), ShouldBeNil)
	return path
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) record(_ context.Context, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func testProfile(engine domain.Engine) domain.ConnectionProfile {
	p := domain.ConnectionProfile{
		Name:       "prod_pg",
		Engine:     engine,
		Host:       "localhost",
		Database:   "app",
		Username:   "admin",
		Credential: domain.NewCredential("s3cret"),
	}
	p.Normalize()
	return p
}

var fixedTime = time.Date(2024, 6, 1, 12, 30, 45, 0, time.Local)

func testOptions() Options {
	return Options{Timeout: 30 * time.Second, TestTimeout: 2 * time.Second}
}
