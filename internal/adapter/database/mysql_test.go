package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/semmidev/dbkeeper/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

const fakeMySQLDump = `
out=""
for arg in "$@"; do
  case "$arg" in
    --result-file=*) out="${arg#--result-file=}" ;;
  esac
done
echo "$MYSQL_PWD" > "$(dirname "$out")/password.txt"
echo "-- Connecting to localhost..." 1>&2
echo "-- MySQL dump 10.13" > "$out"
echo "-- Disconnecting from localhost..." 1>&2
`

func TestMySQLDump(t *testing.T) {
	Convey("Given the MySQL family adapters with a fake dump tool", t, func() {
		ctx := context.Background()
		toolDir := t.TempDir()
		outDir := t.TempDir()
		dumpBin := writeTool(toolDir, "mysqldump", fakeMySQLDump)

		Convey("When MySQL dumps", func() {
			rec := &lineRecorder{}
			profile := testProfile(domain.EngineMySQL)
			adapter := NewMySQL(dumpBin, "mysql", testOptions())
			outcome, err := adapter.Dump(ctx, domain.DumpRequest{Profile: profile, Directory: outDir, Timestamp: fixedTime}, rec.record)

			Convey("It produces a .sql artifact and streams verbose output", func() {
				So(err, ShouldBeNil)
				So(adapter.Engine(), ShouldEqual, domain.EngineMySQL)
				So(filepath.Base(outcome.FilePath), ShouldEqual, "prod_pg_20240601_123045.sql")
				So(rec.get(), ShouldResemble, []string{
					"-- Connecting to localhost...",
					"-- Disconnecting from localhost...",
				})

				pw, _ := os.ReadFile(filepath.Join(outDir, "password.txt"))
				So(strings.TrimSpace(string(pw)), ShouldEqual, "s3cret")
			})
		})

		Convey("When MariaDB dumps", func() {
			profile := testProfile(domain.EngineMariaDB)
			adapter := NewMariaDB(dumpBin, "mariadb", testOptions())
			outcome, err := adapter.Dump(ctx, domain.DumpRequest{Profile: profile, Directory: outDir, Timestamp: fixedTime}, nil)

			Convey("It behaves the same under its own engine", func() {
				So(err, ShouldBeNil)
				So(adapter.Engine(), ShouldEqual, domain.EngineMariaDB)
				So(outcome.SizeBytes, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the dump tool reports an access error", func() {
			failing := writeTool(toolDir, "mysqldump-fail",
				`echo "mysqldump: Got error: 1045: Access denied for user 'admin'" 1>&2; exit 2`)
			adapter := NewMySQL(failing, "mysql", testOptions())
			_, err := adapter.Dump(ctx, domain.DumpRequest{Profile: testProfile(domain.EngineMySQL), Directory: outDir, Timestamp: fixedTime}, nil)

			Convey("It fails with DumpFailed", func() {
				So(errors.Is(err, domain.ErrDumpFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "Access denied")
			})
		})
	})
}

func TestMySQLRestore(t *testing.T) {
	Convey("Given a MySQL adapter with a fake client", t, func() {
		dir := t.TempDir()
		received := filepath.Join(dir, "received.sql")
		t.Setenv("RECEIVED", received)
		client := writeTool(dir, "mysql", `cat > "$RECEIVED"; echo "restored $@"`)
		adapter := NewMySQL("mysqldump", client, testOptions())
		profile := testProfile(domain.EngineMySQL)

		Convey("When the source file is valid", func() {
			src := filepath.Join(dir, "prod_pg_20240601_123045.sql")
			So(os.WriteFile(src, []byte("INSERT INTO users VALUES (1);\n"), 0644), ShouldBeNil)

			rec := &lineRecorder{}
			err := adapter.Restore(context.Background(), profile, src, rec.record)

			Convey("It feeds the file on standard input", func() {
				So(err, ShouldBeNil)
				got, _ := os.ReadFile(received)
				So(string(got), ShouldEqual, "INSERT INTO users VALUES (1);\n")
			})

			Convey("It names the target database last", func() {
				lines := rec.get()
				So(len(lines), ShouldEqual, 1)
				So(lines[0], ShouldEndWith, "--show-warnings app")
				So(lines[0], ShouldNotContainSubstring, "s3cret")
			})
		})

		Convey("When the source file is missing", func() {
			err := adapter.Restore(context.Background(), profile, filepath.Join(dir, "nope.sql"), nil)

			Convey("It fails before running the client", func() {
				So(errors.Is(err, domain.ErrBackupFileNotFound), ShouldBeTrue)
				_, statErr := os.Stat(received)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}
