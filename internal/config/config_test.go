package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(dir, body string) string {
	path := filepath.Join(dir, "config.yaml")
	So(os.WriteFile(path, []byte(body), 0644), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given the config loader", t, func() {
		tempDir := t.TempDir()

		Convey("When the file does not exist", func() {
			cfg, err := Load(filepath.Join(tempDir, "missing.yaml"))

			Convey("It should fall back to defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.App.Name, ShouldEqual, "dbkeeper")
				So(cfg.Backup.Root, ShouldEqual, "backups")
				So(cfg.Backup.Timeout, ShouldEqual, 2*time.Hour)
				So(cfg.Backup.TestTimeout, ShouldEqual, 10*time.Second)
				So(cfg.Tools.PgDump, ShouldEqual, "pg_dump")
				So(cfg.Tools.MariaDBDump, ShouldEqual, "mariadb-dump")
				So(cfg.Tools.PgSSLMode, ShouldEqual, "prefer")
			})
		})

		Convey("When pg_sslmode is not a libpq mode", func() {
			path := writeConfig(tempDir, `
tools:
  pg_sslmode: maybe
`)
			_, err := Load(path)

			Convey("It should be rejected", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "tools.pg_sslmode")
			})
		})

		Convey("When the file overrides values", func() {
			path := writeConfig(tempDir, `
app:
  log_level: debug
backup:
  root: /var/backups/db
  timeout: 30m
  retention_days: 14
  upload_targets:
    - type: local
      enabled: true
      path: /mnt/mirror
    - type: s3
      enabled: false
schedules:
  - connection: prod_pg
    cron: "0 0 2 * * *"
`)
			cfg, err := Load(path)

			Convey("It should use them", func() {
				So(err, ShouldBeNil)
				So(cfg.App.LogLevel, ShouldEqual, "debug")
				So(cfg.Backup.Root, ShouldEqual, "/var/backups/db")
				So(cfg.Backup.Timeout, ShouldEqual, 30*time.Minute)
				So(cfg.Backup.RetentionDays, ShouldEqual, 14)
				So(len(cfg.GetEnabledUploadTargets()), ShouldEqual, 1)
				So(cfg.Schedules[0].Connection, ShouldEqual, "prod_pg")
			})
		})

		Convey("When an environment variable is set", func() {
			t.Setenv("DBKEEPER_BACKUP_ROOT", "/from/env")
			cfg, err := Load("")

			Convey("It should override the default", func() {
				So(err, ShouldBeNil)
				So(cfg.Backup.Root, ShouldEqual, "/from/env")
			})
		})

		Convey("When a schedule has an invalid cron", func() {
			path := writeConfig(tempDir, `
schedules:
  - connection: prod_pg
    cron: "every day"
`)
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "invalid cron")
			})
		})

		Convey("When an upload target is incomplete", func() {
			path := writeConfig(tempDir, `
backup:
  upload_targets:
    - type: s3
      enabled: true
`)
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "bucket and region are required")
			})
		})

		Convey("When the file is malformed", func() {
			path := writeConfig(tempDir, "backup: [unterminated")
			_, err := Load(path)

			Convey("It should return a read error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to read config")
			})
		})
	})
}
