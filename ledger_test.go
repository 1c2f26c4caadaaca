package visionrouter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	vr "github.com/ineyio/visionrouter"
)

func TestRollover(t *testing.T) {
	rec := vr.UsageRecord{Daily: 4, Monthly: 9, LastDay: "2025-04-10", LastMonth: "2025-04"}

	same := vr.Rollover(rec, time.Date(2025, 4, 10, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, rec, same)

	nextDay := vr.Rollover(rec, time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, vr.UsageRecord{Daily: 0, Monthly: 9, LastDay: "2025-04-11", LastMonth: "2025-04"}, nextDay)

	nextMonth := vr.Rollover(rec, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, vr.UsageRecord{Daily: 0, Monthly: 0, LastDay: "2025-05-01", LastMonth: "2025-05"}, nextMonth)

	fresh := vr.Rollover(vr.UsageRecord{}, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, vr.Counts{}, fresh.Counts())
}

func TestStampsAreUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	local := time.Date(2025, 1, 1, 5, 0, 0, 0, loc) // 2024-12-31 19:00 UTC

	assert.Equal(t, "2024-12-31", vr.DayStamp(local))
	assert.Equal(t, "2024-12", vr.MonthStamp(local))
}
