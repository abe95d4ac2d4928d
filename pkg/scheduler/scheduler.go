package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
)

// Job is one scheduled unit of work. Jobs receive a fresh context per
// run and report failure through the returned error; there is no retry,
// the next scheduled run is the retry.
type Job func(ctx context.Context) error

// runTimeout bounds one job execution
const runTimeout = 10 * time.Minute

// Scheduler runs named jobs on cron schedules
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  log.WithComponent("scheduler"),
		entries: make(map[string]cron.EntryID),
	}
}

// Register binds a job to a name and cron schedule. Registering the
// same name twice replaces the previous binding.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}

	logger := log.WithJob(name)
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		start := time.Now()
		logger.Info().Msg("job started")
		if err := job(ctx); err != nil {
			logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
			return
		}
		logger.Info().Dur("duration", time.Since(start)).Msg("job finished")
	})
	if err != nil {
		return err
	}
	s.entries[name] = id
	return nil
}

// Start begins executing registered jobs on their schedules
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
}

// Stop halts scheduling and waits for in-flight jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Jobs lists the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}
