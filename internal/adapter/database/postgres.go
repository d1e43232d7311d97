package database

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// DefaultSSLMode matches libpq, so the probe and the tools negotiate alike.
const DefaultSSLMode = "prefer"

// Postgres dumps with pg_dump in plain SQL format and restores with psql.
type Postgres struct {
	dumpBin string
	psqlBin string
	sslMode string
	opts    Options
	prober  *Prober
}

func NewPostgres(dumpBin, psqlBin string, opts Options) *Postgres {
	return &Postgres{
		dumpBin: dumpBin,
		psqlBin: psqlBin,
		sslMode: DefaultSSLMode,
		opts:    opts,
		prober:  NewProber(opts.testTimeout(), opts.logger()),
	}
}

// WithSSLMode sets the libpq sslmode used by pg_dump, psql and the probe.
// An empty mode keeps the default.
func (p *Postgres) WithSSLMode(mode string) *Postgres {
	if mode != "" {
		p.sslMode = mode
	}
	return p
}

func (p *Postgres) Engine() domain.Engine {
	return domain.EnginePostgres
}

func (p *Postgres) TestConnection(ctx context.Context, profile domain.ConnectionProfile) (bool, error) {
	if err := profile.Validate(); err != nil {
		return false, err
	}
	if err := p.probe(ctx, profile); err != nil {
		p.opts.logger().Warnf("postgres: %v", err)
		return false, nil
	}
	return true, nil
}

// probe pings with p.sslMode. lib/pq has no allow or prefer, so those are
// tried as two attempts in libpq's order.
func (p *Postgres) probe(ctx context.Context, profile domain.ConnectionProfile) error {
	timeout := p.opts.testTimeout()
	check := func(mode string) error {
		return p.prober.Check(ctx, "postgres", postgresDSN(profile, timeout, mode))
	}

	switch p.sslMode {
	case "prefer":
		err := check("require")
		if errors.Is(err, pq.ErrSSLNotSupported) {
			return check("disable")
		}
		return err
	case "allow":
		if err := check("disable"); err != nil && check("require") != nil {
			return err
		}
		return nil
	default:
		return check(p.sslMode)
	}
}

func (p *Postgres) Dump(ctx context.Context, req domain.DumpRequest, progress domain.ProgressFunc) (domain.DumpOutcome, error) {
	path, err := artifactPath(req)
	if err != nil {
		return domain.DumpOutcome{}, err
	}

	profile := req.Profile
	err = run(ctx, command{
		Name: p.dumpBin,
		Args: append(p.connArgs(profile),
			"--no-password",
			"--verbose",
			"--format=plain",
			"--file="+path,
			profile.Database,
		),
		Env:     p.env(profile),
		Timeout: p.opts.Timeout,
	}, profile.Name, domain.KindDumpFailed, progress)

	return finishDump(profile, path, err)
}

func (p *Postgres) Restore(ctx context.Context, profile domain.ConnectionProfile, sourcePath string, progress domain.ProgressFunc) error {
	if err := checkSource(profile, sourcePath); err != nil {
		return err
	}

	return run(ctx, command{
		Name: p.psqlBin,
		Args: append(p.connArgs(profile),
			"--no-password",
			"--dbname="+profile.Database,
			"--set=ON_ERROR_STOP=1",
			"--echo-errors",
			"--file="+sourcePath,
		),
		Env:     p.env(profile),
		Timeout: p.opts.Timeout,
	}, profile.Name, domain.KindRestoreFailed, progress)
}

func (p *Postgres) connArgs(profile domain.ConnectionProfile) []string {
	return []string{
		"--host=" + profile.Host,
		"--port=" + strconv.Itoa(profile.Port),
		"--username=" + profile.Username,
	}
}

func (p *Postgres) env(profile domain.ConnectionProfile) []string {
	env := []string{"PGSSLMODE=" + p.sslMode}
	if !profile.Credential.IsZero() {
		env = append(env, "PGPASSWORD="+profile.Credential.Reveal())
	}
	return env
}

func postgresDSN(profile domain.ConnectionProfile, timeout time.Duration, sslMode string) string {
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(timeout.Seconds())+1))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(profile.Username, profile.Credential.Reveal()),
		Host:     net.JoinHostPort(profile.Host, strconv.Itoa(profile.Port)),
		Path:     "/" + profile.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
