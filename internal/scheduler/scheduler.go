// Package scheduler fires the daily acquisition trigger. A file lock keeps
// a single scheduler active per host even when several server processes
// run side by side. Across hosts the trigger itself deduplicates through
// the ledger (pipeline.Submitter.SubmitScheduled).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// ErrLocked is returned by Start when another scheduler holds the lock.
var ErrLocked = errors.New("another scheduler instance holds the lock")

// Trigger starts one scheduled acquisition.
type Trigger func(ctx context.Context) error

type Config struct {
	// RunAt is the daily run time, "HH:MM" in UTC.
	RunAt    string
	LockPath string
}

type Scheduler struct {
	hour, minute int
	lockPath     string
	lock         *flock.Flock
	trigger      Trigger
	now          func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ParseRunAt parses an "HH:MM" time of day.
func ParseRunAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func New(cfg Config, trigger Trigger) (*Scheduler, error) {
	hour, minute, err := ParseRunAt(cfg.RunAt)
	if err != nil {
		return nil, err
	}
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(os.TempDir(), "thermal-service-scheduler.lock")
	}
	return &Scheduler{
		hour:     hour,
		minute:   minute,
		lockPath: cfg.LockPath,
		lock:     flock.New(cfg.LockPath),
		trigger:  trigger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// NextRun returns the first run time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start acquires the lock and runs the trigger once a day until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if dir := filepath.Dir(s.lockPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	s.wg.Add(1)
	go s.loop(ctx)
	log.Info().
		Str("component", "scheduler").
		Str("lock", s.lockPath).
		Time("next_run", s.NextRun(s.now())).
		Msg("Scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := s.NextRun(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		started := time.Now()
		if err := s.trigger(ctx); err != nil {
			log.Error().Err(err).Str("component", "scheduler").Msg("Scheduled trigger failed")
		} else {
			log.Info().Str("component", "scheduler").Dur("duration", time.Since(started)).Msg("Scheduled trigger completed")
		}
	}
}

// Stop ends the loop and releases the lock.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	if err := s.lock.Unlock(); err != nil {
		log.Warn().Err(err).Str("component", "scheduler").Msg("Failed to release scheduler lock")
	}
}
