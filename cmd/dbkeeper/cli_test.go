package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(configPath, stdin string, args ...string) result {
	var out, errOut bytes.Buffer
	args = append([]string{"--config", configPath, "--no-color"}, args...)
	code := execute(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func writeConfig(dir string) string {
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`app:
  log_level: error
registry:
  path: %s
  key_file: %s
backup:
  root: %s
  test_timeout: 2s
`, filepath.Join(dir, "catalog.yaml"), filepath.Join(dir, "catalog.key"), filepath.Join(dir, "backups"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		panic(err)
	}
	return path
}

func TestCommands(t *testing.T) {
	Convey("Given an empty catalog", t, func() {
		dir := t.TempDir()
		cfg := writeConfig(dir)

		Convey("db list reports nothing registered", func() {
			r := run(cfg, "", "db", "list")
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, "No connections registered.")
		})

		Convey("db add stores a profile with the engine's default port", func() {
			r := run(cfg, "s3cret\n", "db", "add", "prod_pg", "--engine", "postgres",
				"--host", "db.internal", "--database", "app", "--user", "admin")
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, "✓ Added prod_pg (postgres db.internal:5432/app)")

			list := run(cfg, "", "db", "list")
			So(list.stdout, ShouldContainSubstring, "prod_pg")
			So(list.stdout, ShouldContainSubstring, "5432")
			So(list.stdout, ShouldNotContainSubstring, "s3cret")

			Convey("Adding the same name again is a usage error", func() {
				again := run(cfg, "", "db", "add", "prod_pg", "--engine", "mysql",
					"--database", "app", "--user", "root", "--password", "x")
				So(again.code, ShouldEqual, 2)
			})

			Convey("Restoring a missing file reports BackupFileNotFound", func() {
				r := run(cfg, "", "restore", "prod_pg", filepath.Join(dir, "missing.sql"), "--force")
				So(r.code, ShouldEqual, 5)
				So(r.stderr, ShouldContainSubstring, "BackupFileNotFound")
			})

			Convey("A missing file is reported before asking for confirmation", func() {
				r := run(cfg, "yes\n", "restore", "prod_pg", filepath.Join(dir, "typo.sql"))
				So(r.code, ShouldEqual, 5)
				So(r.stderr, ShouldContainSubstring, "BackupFileNotFound")
				So(r.stderr, ShouldNotContainSubstring, "Type 'yes' to continue")
			})

			Convey("Declining the confirmation leaves the database alone", func() {
				file := filepath.Join(dir, "prod_pg_20240601_123045.sql")
				So(os.WriteFile(file, []byte("-- dump\n"), 0644), ShouldBeNil)

				r := run(cfg, "no\n", "restore", "prod_pg", file)
				So(r.code, ShouldEqual, 7)
				So(r.stderr, ShouldContainSubstring, "Type 'yes' to continue")
			})

			Convey("db delete removes it", func() {
				r := run(cfg, "", "db", "delete", "prod_pg")
				So(r.code, ShouldEqual, 0)
				So(run(cfg, "", "db", "list").stdout, ShouldContainSubstring, "No connections registered.")
			})

			Convey("db test against a closed port reports unreachable", func() {
				add := run(cfg, "", "db", "add", "closed_pg", "--engine", "postgres",
					"--host", "127.0.0.1", "--port", "1", "--database", "app", "--user", "admin", "--password", "x")
				So(add.code, ShouldEqual, 0)

				start := time.Now()
				r := run(cfg, "", "db", "test", "closed_pg")
				So(r.code, ShouldEqual, 9)
				So(time.Since(start), ShouldBeLessThan, 10*time.Second)
			})
		})

		Convey("An unknown engine is rejected", func() {
			r := run(cfg, "", "db", "add", "x", "--engine", "oracle", "--database", "app", "--user", "u", "--password", "p")
			So(r.code, ShouldEqual, 2)
		})

		Convey("Operations on unknown connections exit with the not-found code", func() {
			So(run(cfg, "", "backup", "ghost", "--no-upload").code, ShouldEqual, 3)
			So(run(cfg, "", "db", "test", "ghost").code, ShouldEqual, 3)
			So(run(cfg, "", "db", "delete", "ghost").code, ShouldEqual, 3)
			So(run(cfg, "", "restore", "ghost", "x.sql", "--force").code, ShouldEqual, 3)
		})

		Convey("list-backups on a name without history", func() {
			r := run(cfg, "", "list-backups", "ghost")
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, "No backups recorded.")
		})

		Convey("db info shows the catalog location", func() {
			r := run(cfg, "", "db", "info")
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, filepath.Join(dir, "catalog.yaml"))
			So(r.stdout, ShouldContainSubstring, "exists: no")
			So(r.stdout, ShouldContainSubstring, "Log output:   stderr")
		})

		Convey("cleanup with nothing to delete", func() {
			r := run(cfg, "", "cleanup")
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, "✓ Cleanup removed 0 file(s)")
		})
	})
}

func TestPrintBackups(t *testing.T) {
	color.NoColor = true

	Convey("Given history in insertion order", t, func() {
		t0 := time.Date(2024, 6, 1, 12, 30, 45, 0, time.Local)
		records := []domain.BackupRecord{
			{ConnectionName: "prod_pg", Status: domain.StatusSucceeded, FilePath: "/b/prod_pg_20240601_123045.sql", FileSizeBytes: 2048, CreatedAt: t0},
			{ConnectionName: "prod_pg", Status: domain.StatusFailed, ErrorMessage: "DumpFailed: access denied", CreatedAt: t0.Add(time.Hour)},
		}

		var buf bytes.Buffer
		printBackups(&buf, records)
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

		Convey("Newest comes first in the fixed layout", func() {
			So(len(lines), ShouldEqual, 2)
			So(lines[0], ShouldEqual, "[Failed] 2024-06-01 13:30 | - | DumpFailed: access denied")
			So(lines[1], ShouldEqual, "[Succeeded] 2024-06-01 12:30 | 2.0 kB | /b/prod_pg_20240601_123045.sql")
		})

		Convey("The input slice is not reordered", func() {
			So(records[0].Status, ShouldEqual, domain.StatusSucceeded)
		})
	})
}

func TestExitCode(t *testing.T) {
	Convey("Exit codes follow the error kind", t, func() {
		So(exitCode(nil), ShouldEqual, 0)
		So(exitCode(errors.New("boom")), ShouldEqual, 1)
		So(exitCode(domain.NewError(domain.KindConnectionNotFound, "x", "", nil)), ShouldEqual, 3)
		So(exitCode(domain.NewError(domain.KindConnectionBusy, "x", "", nil)), ShouldEqual, 4)
		So(exitCode(fmt.Errorf("wrapped: %w", domain.NewError(domain.KindDumpFailed, "x", "", nil))), ShouldEqual, 6)
		So(exitCode(domain.NewError(domain.KindCancelled, "x", "", nil)), ShouldEqual, 130)
		So(exitCode(domain.NewError(domain.KindTimeout, "x", "", nil)), ShouldEqual, 124)
		So(exitCode(fmt.Errorf("prod: %w", errUnreachable)), ShouldEqual, 9)
	})
}

func TestConfirm(t *testing.T) {
	Convey("Only an exact yes confirms", t, func() {
		var out bytes.Buffer
		ok, err := confirm(strings.NewReader("yes\n"), &out, "Overwrite?")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		ok, _ = confirm(strings.NewReader("y\n"), &out, "Overwrite?")
		So(ok, ShouldBeFalse)

		ok, err = confirm(strings.NewReader(""), &out, "Overwrite?")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})
}
