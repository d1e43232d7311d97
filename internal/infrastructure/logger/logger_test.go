package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				var buf bytes.Buffer
				logger, err := New(Options{Level: "info", Console: &buf})

				Convey("It should write to the console writer", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)

					logger.Infof("backup of %s started", "prod_pg")
					logger.Sync()
					So(buf.String(), ShouldContainSubstring, "backup of prod_pg started")
					So(buf.String(), ShouldContainSubstring, "INFO")
				})
			})

			Convey("When creating a logger with a valid log file", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				logFile := filepath.Join(tempDir, "logs", "dbkeeper.log")
				logger, err := New(Options{Level: "debug", File: logFile, Console: &bytes.Buffer{}})

				Convey("It should create the log directory and file", func() {
					So(err, ShouldBeNil)

					logger.Debug("Test debug log")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, `"msg":"Test debug log"`)
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				var buf bytes.Buffer
				logger, err := New(Options{Level: "invalid", Console: &buf})

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)
					logger.Debug("hidden")
					logger.Info("shown")
					logger.Sync()
					So(buf.String(), ShouldNotContainSubstring, "hidden")
					So(buf.String(), ShouldContainSubstring, "shown")
				})
			})

			Convey("When creating a logger with an invalid log file path", func() {
				logger, err := New(Options{Level: "info", File: "/proc/invalid/path/test.log"})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("For method", func() {
			var buf bytes.Buffer
			logger, _ := New(Options{Level: "info", Console: &buf})

			Convey("It should tag entries with the connection", func() {
				logger.For("prod_pg").Infof("dumping")
				logger.Sync()
				So(buf.String(), ShouldContainSubstring, `"connection": "prod_pg"`)
			})
		})

		Convey("Nop logger", func() {
			So(func() { Nop().Infof("nothing %d", 1) }, ShouldNotPanic)
		})
	})
}
