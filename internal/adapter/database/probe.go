package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Prober answers "can we reach this server" with a driver level ping.
type Prober struct {
	timeout time.Duration
	logger  Logger
	open    func(driver, dsn string) (*sql.DB, error)
}

func NewProber(timeout time.Duration, logger Logger) *Prober {
	return &Prober{timeout: timeout, logger: logger, open: sql.Open}
}

// Ping reports false for every failure; the reason is logged, never surfaced.
func (p *Prober) Ping(ctx context.Context, driver, dsn string) bool {
	if err := p.Check(ctx, driver, dsn); err != nil {
		p.logger.Warnf("%s: %v", driver, err)
		return false
	}
	return true
}

// Check is Ping with the failure returned instead of logged.
func (p *Prober) Check(ctx context.Context, driver, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	db, err := p.open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
