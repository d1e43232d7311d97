package database

import (
	"context"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// MySQL covers MySQL and MariaDB; they differ only in tool names.
type MySQL struct {
	engine    domain.Engine
	dumpBin   string
	clientBin string
	opts      Options
	prober    *Prober
}

func NewMySQL(dumpBin, clientBin string, opts Options) *MySQL {
	return newMySQLFamily(domain.EngineMySQL, dumpBin, clientBin, opts)
}

func NewMariaDB(dumpBin, clientBin string, opts Options) *MySQL {
	return newMySQLFamily(domain.EngineMariaDB, dumpBin, clientBin, opts)
}

func newMySQLFamily(engine domain.Engine, dumpBin, clientBin string, opts Options) *MySQL {
	return &MySQL{
		engine:    engine,
		dumpBin:   dumpBin,
		clientBin: clientBin,
		opts:      opts,
		prober:    NewProber(opts.testTimeout(), opts.logger()),
	}
}

func (m *MySQL) Engine() domain.Engine {
	return m.engine
}

func (m *MySQL) TestConnection(ctx context.Context, profile domain.ConnectionProfile) (bool, error) {
	if err := profile.Validate(); err != nil {
		return false, err
	}

	cfg := mysql.NewConfig()
	cfg.User = profile.Username
	cfg.Passwd = profile.Credential.Reveal()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(profile.Host, strconv.Itoa(profile.Port))
	cfg.DBName = profile.Database
	cfg.Timeout = m.opts.testTimeout()

	return m.prober.Ping(ctx, "mysql", cfg.FormatDSN()), nil
}

func (m *MySQL) Dump(ctx context.Context, req domain.DumpRequest, progress domain.ProgressFunc) (domain.DumpOutcome, error) {
	path, err := artifactPath(req)
	if err != nil {
		return domain.DumpOutcome{}, err
	}

	profile := req.Profile
	err = run(ctx, command{
		Name: m.dumpBin,
		Args: append(m.connArgs(profile),
			"--verbose",
			"--single-transaction",
			"--quick",
			"--routines",
			"--triggers",
			"--events",
			"--result-file="+path,
			profile.Database,
		),
		Env:     m.env(profile),
		Timeout: m.opts.Timeout,
	}, profile.Name, domain.KindDumpFailed, progress)

	return finishDump(profile, path, err)
}

func (m *MySQL) Restore(ctx context.Context, profile domain.ConnectionProfile, sourcePath string, progress domain.ProgressFunc) error {
	if err := checkSource(profile, sourcePath); err != nil {
		return err
	}

	return run(ctx, command{
		Name:    m.clientBin,
		Args:    append(m.connArgs(profile), "--show-warnings", profile.Database),
		Env:     m.env(profile),
		Stdin:   sourcePath,
		Timeout: m.opts.Timeout,
	}, profile.Name, domain.KindRestoreFailed, progress)
}

func (m *MySQL) connArgs(profile domain.ConnectionProfile) []string {
	return []string{
		"--host=" + profile.Host,
		"--port=" + strconv.Itoa(profile.Port),
		"--user=" + profile.Username,
		"--protocol=TCP",
	}
}

// env passes the password through MYSQL_PWD, which both client families
// read, instead of the process arguments.
func (m *MySQL) env(profile domain.ConnectionProfile) []string {
	if profile.Credential.IsZero() {
		return nil
	}
	return []string{"MYSQL_PWD=" + profile.Credential.Reveal()}
}
