package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
)

const (
	// alertThreshold is the quota fraction that triggers an alert
	alertThreshold = 0.8

	// alertDedupWindow suppresses repeat alerts for the same resource
	alertDedupWindow = time.Hour

	// alertRetention is how long the janitor keeps alert markers
	alertRetention = 24 * time.Hour

	// janitorInterval prunes counters for dates past and stale alerts
	janitorInterval = 24 * time.Hour

	// rateEventCap bounds the in-memory rate-limit event buffer
	rateEventCap = 1000
)

// Usage is one UTC date's operation counters
type Usage struct {
	Date              string `json:"date"`
	BlobWrites        int64  `json:"r2Writes"`
	BlobReads         int64  `json:"r2Reads"`
	DBQueries         int64  `json:"d1Queries"`
	DBWrites          int64  `json:"d1Writes"`
	TotalStorageBytes int64  `json:"totalStorageBytes"`
	TotalGenerations  int64  `json:"totalGenerations"`
	Successful        int64  `json:"successfulGenerations"`
	Failed            int64  `json:"failedGenerations"`
	UniqueUsers       int64  `json:"uniqueUsers"`
}

// Quotas are the free-tier daily budgets alerts are measured against
type Quotas struct {
	BlobWrites int64
	BlobReads  int64
	DBQueries  int64
	DBWrites   int64
}

// DefaultQuotas mirror the hosting platform's free-tier daily limits
var DefaultQuotas = Quotas{
	BlobWrites: 1_000_000,
	BlobReads:  10_000_000,
	DBQueries:  5_000_000,
	DBWrites:   100_000,
}

// RateEvent records one rate-limit denial for support queries
type RateEvent struct {
	Identifier string    `json:"identifier"`
	Tier       string    `json:"tier"`
	At         time.Time `json:"at"`
}

type dayCounters struct {
	usage Usage
	users map[string]bool
}

// Tracker accumulates in-process usage telemetry per UTC date. It is a
// soft signal for quota headroom, distinct from the durable metrics
// rollup in the metastore.
type Tracker struct {
	quotas Quotas
	now    func() time.Time
	logger zerolog.Logger

	mu         sync.Mutex
	days       map[string]*dayCounters
	alerts     map[string]time.Time
	rateEvents []RateEvent

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTracker(quotas Quotas) *Tracker {
	t := &Tracker{
		quotas: quotas,
		now:    time.Now,
		logger: log.WithComponent("telemetry"),
		days:   make(map[string]*dayCounters),
		alerts: make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
	go t.janitorLoop()
	return t
}

// Stop halts the janitor
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) today() *dayCounters {
	date := t.now().UTC().Format("2006-01-02")
	day, ok := t.days[date]
	if !ok {
		day = &dayCounters{usage: Usage{Date: date}, users: make(map[string]bool)}
		t.days[date] = day
	}
	return day
}

// RecordBlobWrite counts one blob write of the given size
func (t *Tracker) RecordBlobWrite(bytes int64) {
	t.mu.Lock()
	day := t.today()
	day.usage.BlobWrites++
	day.usage.TotalStorageBytes += bytes
	used, quota := day.usage.BlobWrites, t.quotas.BlobWrites
	t.mu.Unlock()
	t.maybeAlert("blob-writes", used, quota)
}

// RecordBlobRead counts one blob read
func (t *Tracker) RecordBlobRead() {
	t.mu.Lock()
	day := t.today()
	day.usage.BlobReads++
	used, quota := day.usage.BlobReads, t.quotas.BlobReads
	t.mu.Unlock()
	t.maybeAlert("blob-reads", used, quota)
}

// RecordDBQuery counts one metadata read
func (t *Tracker) RecordDBQuery() {
	t.mu.Lock()
	day := t.today()
	day.usage.DBQueries++
	used, quota := day.usage.DBQueries, t.quotas.DBQueries
	t.mu.Unlock()
	t.maybeAlert("db-queries", used, quota)
}

// RecordDBWrite counts one metadata write
func (t *Tracker) RecordDBWrite() {
	t.mu.Lock()
	day := t.today()
	day.usage.DBWrites++
	used, quota := day.usage.DBWrites, t.quotas.DBWrites
	t.mu.Unlock()
	t.maybeAlert("db-writes", used, quota)
}

// RecordGeneration counts one generation attempt and its outcome
func (t *Tracker) RecordGeneration(userID string, succeeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.today()
	day.usage.TotalGenerations++
	if succeeded {
		day.usage.Successful++
	} else {
		day.usage.Failed++
	}
	if userID != "" && !day.users[userID] {
		day.users[userID] = true
		day.usage.UniqueUsers++
	}
}

// RecordRateLimited appends a rate-limit denial to the event buffer
func (t *Tracker) RecordRateLimited(identifier, tier string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rateEvents = append(t.rateEvents, RateEvent{
		Identifier: identifier,
		Tier:       tier,
		At:         t.now().UTC(),
	})
	if len(t.rateEvents) > rateEventCap {
		t.rateEvents = t.rateEvents[len(t.rateEvents)-rateEventCap:]
	}
}

// RateEventsFor returns the buffered denials for one identifier,
// newest last.
func (t *Tracker) RateEventsFor(identifier string) []RateEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []RateEvent
	for _, ev := range t.rateEvents {
		if ev.Identifier == identifier {
			out = append(out, ev)
		}
	}
	return out
}

// UsageFor returns a copy of one date's counters
func (t *Tracker) UsageFor(date string) (Usage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day, ok := t.days[date]
	if !ok {
		return Usage{}, false
	}
	return day.usage, true
}

// UsageToday returns today's counters
func (t *Tracker) UsageToday() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.today().usage
}

// maybeAlert logs a quota alert when usage crosses the threshold, at
// most once per resource per dedup window.
func (t *Tracker) maybeAlert(resource string, used, quota int64) {
	if quota <= 0 || float64(used) < alertThreshold*float64(quota) {
		return
	}

	now := t.now()
	t.mu.Lock()
	last, seen := t.alerts[resource]
	if seen && now.Sub(last) < alertDedupWindow {
		t.mu.Unlock()
		return
	}
	t.alerts[resource] = now
	t.mu.Unlock()

	t.logger.Warn().
		Str("resource", resource).
		Int64("used", used).
		Int64("quota", quota).
		Msg("daily quota approaching limit")
}

func (t *Tracker) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.janitor()
		case <-t.stopCh:
			return
		}
	}
}

// janitor drops counters for past dates and stale alert markers
func (t *Tracker) janitor() {
	today := t.now().UTC().Format("2006-01-02")
	cutoff := t.now().Add(-alertRetention)

	t.mu.Lock()
	defer t.mu.Unlock()

	var dropped []string
	for date := range t.days {
		if date != today {
			dropped = append(dropped, date)
			delete(t.days, date)
		}
	}
	for resource, at := range t.alerts {
		if at.Before(cutoff) {
			delete(t.alerts, resource)
		}
	}

	if len(dropped) > 0 {
		sort.Strings(dropped)
		t.logger.Debug().Strs("dates", dropped).Msg("pruned telemetry counters")
	}
}
