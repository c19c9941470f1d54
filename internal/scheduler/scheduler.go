package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/i474232898/air-health-tracker/internal/airquality"
)

// DefaultOffset is how long after local midnight the daily pass runs.
const DefaultOffset = 5 * time.Minute

// Collector is the part of airquality.Service the scheduler drives.
type Collector interface {
	RunIfDue(ctx context.Context, force bool) (airquality.CollectionResult, bool, error)
}

// Scheduler runs one collection pass shortly after every local midnight.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector Collector
	offset    time.Duration
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
}

// New creates a new Scheduler. loc is the zone whose midnight anchors the timer.
func New(collector Collector, offset, timeout time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if offset < 0 || offset >= 24*time.Hour {
		offset = DefaultOffset
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		collector: collector,
		offset:    offset,
		timeout:   timeout,
		loc:       loc,
		now:       time.Now,
	}
}

// Start arms the daily job: first run at the next midnight plus offset, then every 24h.
func (s *Scheduler) Start() error {
	first := NextRun(s.now(), s.offset, s.loc)

	_, err := s.scheduler.Every(24).Hours().StartAt(first).Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: daily collection armed, first run at %s", first.Format(time.RFC3339))
	return nil
}

func (s *Scheduler) run() {
	log.Println("scheduler: running daily collection job")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// The timer always collects; the same-day marker is only consulted at startup.
	res, _, err := s.collector.RunIfDue(ctx, true)
	if err != nil {
		log.Printf("scheduler: collection failed: %v", err)
		return
	}
	log.Printf("scheduler: completed daily collection job (pass %s)", res.PassID)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// NextRun returns the first instant after now that is offset past a local midnight in loc.
func NextRun(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	next := midnight.Add(offset)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc).Add(offset)
	}
	return next
}
