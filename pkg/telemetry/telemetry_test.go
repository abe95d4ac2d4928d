package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, quotas Quotas) *Tracker {
	t.Helper()
	tr := NewTracker(quotas)
	t.Cleanup(tr.Stop)
	return tr
}

func TestCountersAccumulatePerDay(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	tr.RecordBlobWrite(1000)
	tr.RecordBlobWrite(500)
	tr.RecordBlobRead()
	tr.RecordDBQuery()
	tr.RecordDBWrite()
	tr.RecordGeneration("user-1", true)
	tr.RecordGeneration("user-1", true)
	tr.RecordGeneration("user-2", false)
	tr.RecordGeneration("", true)

	u := tr.UsageToday()
	assert.Equal(t, int64(2), u.BlobWrites)
	assert.Equal(t, int64(1500), u.TotalStorageBytes)
	assert.Equal(t, int64(1), u.BlobReads)
	assert.Equal(t, int64(1), u.DBQueries)
	assert.Equal(t, int64(1), u.DBWrites)
	assert.Equal(t, int64(4), u.TotalGenerations)
	assert.Equal(t, int64(3), u.Successful)
	assert.Equal(t, int64(1), u.Failed)
	assert.Equal(t, int64(2), u.UniqueUsers, "anonymous and repeat users do not inflate the count")
}

func TestCountersRollOverAtMidnightUTC(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	day1 := time.Date(2026, 8, 23, 23, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	tr.RecordBlobWrite(100)

	day2 := day1.Add(2 * time.Hour)
	tr.now = func() time.Time { return day2 }
	tr.RecordBlobWrite(200)

	u1, ok := tr.UsageFor("2026-08-23")
	require.True(t, ok)
	assert.Equal(t, int64(1), u1.BlobWrites)

	u2, ok := tr.UsageFor("2026-08-24")
	require.True(t, ok)
	assert.Equal(t, int64(1), u2.BlobWrites)
	assert.Equal(t, int64(200), u2.TotalStorageBytes)
}

func TestQuotaAlertDedup(t *testing.T) {
	tr := newTestTracker(t, Quotas{DBWrites: 10})

	base := time.Now()
	tr.now = func() time.Time { return base }

	// 8 of 10 crosses the 80% threshold once
	for i := 0; i < 9; i++ {
		tr.RecordDBWrite()
	}
	first, ok := tr.alerts["db-writes"]
	require.True(t, ok)

	// Still inside the dedup window: timestamp unchanged
	tr.RecordDBWrite()
	assert.Equal(t, first, tr.alerts["db-writes"])

	// After the window a new alert fires
	later := base.Add(alertDedupWindow + time.Minute)
	tr.now = func() time.Time { return later }
	tr.RecordDBWrite()
	assert.Equal(t, later, tr.alerts["db-writes"])
}

func TestRateEventBuffer(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	tr.RecordRateLimited("1.2.3.4", "anonymous")
	tr.RecordRateLimited("5.6.7.8", "anonymous")
	tr.RecordRateLimited("1.2.3.4", "anonymous")

	events := tr.RateEventsFor("1.2.3.4")
	require.Len(t, events, 2)
	assert.Equal(t, "anonymous", events[0].Tier)
	assert.Empty(t, tr.RateEventsFor("9.9.9.9"))
}

func TestRateEventBufferBounded(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	for i := 0; i < rateEventCap+50; i++ {
		tr.RecordRateLimited("ip", "anonymous")
	}
	assert.Len(t, tr.RateEventsFor("ip"), rateEventCap)
}

func TestJanitorPrunesPastDates(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	day1 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	tr.RecordBlobWrite(1)

	day2 := day1.Add(24 * time.Hour)
	tr.now = func() time.Time { return day2 }
	tr.RecordBlobWrite(1)

	// Alert markers older than the retention window go too; fresher
	// ones survive even though the dedup window has passed.
	tr.alerts["db-writes"] = day2.Add(-alertRetention - time.Minute)
	tr.alerts["blob-writes"] = day2.Add(-2 * alertDedupWindow)

	tr.janitor()

	_, ok := tr.UsageFor("2026-08-23")
	assert.False(t, ok)
	_, ok = tr.UsageFor("2026-08-24")
	assert.True(t, ok)

	_, ok = tr.alerts["db-writes"]
	assert.False(t, ok)
	_, ok = tr.alerts["blob-writes"]
	assert.True(t, ok)
}

func TestConcurrentRecording(t *testing.T) {
	tr := newTestTracker(t, DefaultQuotas)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordDBQuery()
				tr.RecordGeneration("user", true)
			}
		}()
	}
	wg.Wait()

	u := tr.UsageToday()
	assert.Equal(t, int64(1000), u.DBQueries)
	assert.Equal(t, int64(1000), u.TotalGenerations)
	assert.Equal(t, int64(1), u.UniqueUsers)
}
