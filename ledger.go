package visionrouter

import (
	"context"
	"time"
)

// UsageLedger keeps per-user, per-provider counters over the current UTC
// day and month. Counters never decrease; a record whose stamps are stale
// reads back as zero in the stale window.
type UsageLedger interface {
	// CurrentUsage returns the counters after applying rollover.
	CurrentUsage(ctx context.Context, userID, provider string) (Counts, error)

	// Increment applies rollover, adds one to both counters and returns
	// the post-increment values.
	Increment(ctx context.Context, userID, provider string) (Counts, error)
}

// UsageRecord is the persisted state behind a ledger key.
type UsageRecord struct {
	Daily     int64
	Monthly   int64
	LastDay   string
	LastMonth string
}

// Counts returns the counters of the record.
func (r UsageRecord) Counts() Counts {
	return Counts{Daily: r.Daily, Monthly: r.Monthly}
}

// Rollover zeroes the counters whose window has passed and moves the
// stamps to now.
func Rollover(r UsageRecord, now time.Time) UsageRecord {
	day, month := DayStamp(now), MonthStamp(now)
	if r.LastDay != day {
		r.Daily = 0
		r.LastDay = day
	}
	if r.LastMonth != month {
		r.Monthly = 0
		r.LastMonth = month
	}
	return r
}

// DayStamp formats the UTC calendar day of t as YYYY-MM-DD.
func DayStamp(t time.Time) string { return t.UTC().Format("2006-01-02") }

// MonthStamp formats the UTC calendar month of t as YYYY-MM.
func MonthStamp(t time.Time) string { return t.UTC().Format("2006-01") }

// Clock returns the current time. Ledgers take one so tests can move
// across day and month boundaries.
type Clock func() time.Time
