package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/semmidev/dbkeeper/internal/domain"
)

// SQLServer drives native BACKUP/RESTORE through sqlcmd. The server writes
// and reads the .bak file itself, so the backup directory must be reachable
// from the server under the same path.
type SQLServer struct {
	sqlcmdBin string
	opts      Options
	prober    *Prober
}

func NewSQLServer(sqlcmdBin string, opts Options) *SQLServer {
	return &SQLServer{
		sqlcmdBin: sqlcmdBin,
		opts:      opts,
		prober:    NewProber(opts.testTimeout(), opts.logger()),
	}
}

func (s *SQLServer) Engine() domain.Engine {
	return domain.EngineSQLServer
}

func (s *SQLServer) TestConnection(ctx context.Context, profile domain.ConnectionProfile) (bool, error) {
	if err := profile.Validate(); err != nil {
		return false, err
	}

	q := url.Values{}
	q.Set("database", profile.Database)
	q.Set("connection timeout", strconv.Itoa(int(s.opts.testTimeout().Seconds())+1))
	q.Set("TrustServerCertificate", "true")

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(profile.Username, profile.Credential.Reveal()),
		Host:     net.JoinHostPort(profile.Host, strconv.Itoa(profile.Port)),
		RawQuery: q.Encode(),
	}
	return s.prober.Ping(ctx, "sqlserver", u.String()), nil
}

func (s *SQLServer) Dump(ctx context.Context, req domain.DumpRequest, progress domain.ProgressFunc) (domain.DumpOutcome, error) {
	path, err := artifactPath(req)
	if err != nil {
		return domain.DumpOutcome{}, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	profile := req.Profile
	query := fmt.Sprintf("BACKUP DATABASE %s TO DISK = %s WITH INIT, STATS = 10",
		quoteIdent(profile.Database), quoteString(path))

	err = run(ctx, s.query(profile, query), profile.Name, domain.KindDumpFailed, progress)
	return finishDump(profile, path, err)
}

func (s *SQLServer) Restore(ctx context.Context, profile domain.ConnectionProfile, sourcePath string, progress domain.ProgressFunc) error {
	if err := checkSource(profile, sourcePath); err != nil {
		return err
	}
	if abs, err := filepath.Abs(sourcePath); err == nil {
		sourcePath = abs
	}

	db := quoteIdent(profile.Database)
	reopen := fmt.Sprintf("IF DB_ID(%s) IS NOT NULL ALTER DATABASE %s SET MULTI_USER", quoteString(profile.Database), db)
	// A failed RESTORE must not leave the database in SINGLE_USER, so the
	// CATCH block reopens it before re-raising.
	query := strings.Join([]string{
		fmt.Sprintf("IF DB_ID(%s) IS NOT NULL ALTER DATABASE %s SET SINGLE_USER WITH ROLLBACK IMMEDIATE;",
			quoteString(profile.Database), db),
		fmt.Sprintf("BEGIN TRY RESTORE DATABASE %s FROM DISK = %s WITH REPLACE, STATS = 10; END TRY",
			db, quoteString(sourcePath)),
		fmt.Sprintf("BEGIN CATCH %s; THROW; END CATCH;", reopen),
		fmt.Sprintf("ALTER DATABASE %s SET MULTI_USER", db),
	}, " ")

	return run(ctx, s.query(profile, query), profile.Name, domain.KindRestoreFailed, progress)
}

// query runs against master; BACKUP and RESTORE name the database explicitly.
func (s *SQLServer) query(profile domain.ConnectionProfile, query string) command {
	return command{
		Name: s.sqlcmdBin,
		Args: []string{
			"-S", fmt.Sprintf("tcp:%s,%d", profile.Host, profile.Port),
			"-U", profile.Username,
			"-d", "master",
			"-C",
			"-b",
			"-Q", query,
		},
		Env:     []string{"SQLCMDPASSWORD=" + profile.Credential.Reveal()},
		Timeout: s.opts.Timeout,
	}
}

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func quoteString(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}
