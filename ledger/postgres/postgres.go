// Package postgres provides a PostgreSQL-backed UsageLedger for visionrouter.
//
// Records live in one table keyed by (user_id, provider). Increment is a
// single upsert that rolls the windows over in SQL, which makes it safe for
// multi-instance deployments and durable across restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	vr "github.com/ineyio/visionrouter"
)

// Ledger is a PostgreSQL-backed UsageLedger.
type Ledger struct {
	pool        *pgxpool.Pool
	tablePrefix string
	now         vr.Clock
}

var _ vr.UsageLedger = (*Ledger)(nil)

// Option configures Ledger.
type Option func(*Ledger)

// WithTablePrefix sets the table name prefix (default "visionrouter_").
func WithTablePrefix(prefix string) Option {
	return func(l *Ledger) { l.tablePrefix = prefix }
}

// WithClock sets the time source used for rollover.
func WithClock(c vr.Clock) Option {
	return func(l *Ledger) { l.now = c }
}

// New creates a PostgreSQL-backed UsageLedger.
func New(pool *pgxpool.Pool, opts ...Option) *Ledger {
	l := &Ledger{
		pool:        pool,
		tablePrefix: "visionrouter_",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) usageTable() string { return l.tablePrefix + "usage" }

// EnsureSchema creates the usage table if it doesn't exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			daily BIGINT NOT NULL DEFAULT 0,
			monthly BIGINT NOT NULL DEFAULT 0,
			last_day TEXT NOT NULL,
			last_month TEXT NOT NULL,
			PRIMARY KEY (user_id, provider)
		);
	`, l.usageTable())
	if _, err := l.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("visionrouter/postgres: ensure schema: %w", err)
	}
	return nil
}

// Increment rolls the record over and adds one to both counters.
func (l *Ledger) Increment(ctx context.Context, userID, provider string) (vr.Counts, error) {
	now := l.now()
	day, month := vr.DayStamp(now), vr.MonthStamp(now)

	var c vr.Counts
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s AS t (user_id, provider, daily, monthly, last_day, last_month)
			VALUES ($1, $2, 1, 1, $3, $4)
			ON CONFLICT (user_id, provider) DO UPDATE SET
				daily = CASE WHEN t.last_day = $3 THEN t.daily + 1 ELSE 1 END,
				monthly = CASE WHEN t.last_month = $4 THEN t.monthly + 1 ELSE 1 END,
				last_day = $3,
				last_month = $4
			RETURNING daily, monthly`, l.usageTable()),
		userID, provider, day, month,
	).Scan(&c.Daily, &c.Monthly)
	if err != nil {
		return vr.Counts{}, fmt.Errorf("visionrouter/postgres: increment: %w", err)
	}
	return c, nil
}

// CurrentUsage reads a record and applies rollover without writing back.
func (l *Ledger) CurrentUsage(ctx context.Context, userID, provider string) (vr.Counts, error) {
	var rec vr.UsageRecord
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT daily, monthly, last_day, last_month FROM %s WHERE user_id = $1 AND provider = $2`,
			l.usageTable()),
		userID, provider,
	).Scan(&rec.Daily, &rec.Monthly, &rec.LastDay, &rec.LastMonth)

	if errors.Is(err, pgx.ErrNoRows) {
		return vr.Counts{}, nil
	}
	if err != nil {
		return vr.Counts{}, fmt.Errorf("visionrouter/postgres: current usage: %w", err)
	}
	return vr.Rollover(rec, l.now()).Counts(), nil
}

// Prune deletes records last touched in a month before the month of
// before, and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE last_month < $1`, l.usageTable()),
		vr.MonthStamp(before),
	)
	if err != nil {
		return 0, fmt.Errorf("visionrouter/postgres: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
