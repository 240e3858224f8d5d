// Package jobs runs the periodic background work: check-in reminders and upload cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/imalive/server/config"
	"github.com/imalive/server/services"
)

const (
	reminderLockKey = "lock:jobs:reminders"
	cleanupLockKey  = "lock:jobs:upload-cleanup"
	jobTimeout      = 50 * time.Second
)

// Scheduler owns the cron instance. With redis configured, each run takes a lock so that
// only one instance of the service does the work.
type Scheduler struct {
	cfg       config.AppConfig
	cron      *cron.Cron
	reminders *services.ReminderService
	uploads   *services.UploadStore
	locker    *redislock.Client
	log       *zap.Logger
	now       func() time.Time
}

// NewScheduler builds a scheduler. rc may be nil.
func NewScheduler(cfg config.AppConfig, reminders *services.ReminderService, uploads *services.UploadStore, rc *redis.Client, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cfg:       cfg,
		cron:      cron.New(cron.WithLocation(cfg.Location())),
		reminders: reminders,
		uploads:   uploads,
		log:       log.Named("jobs"),
		now:       time.Now,
	}
	if rc != nil {
		s.locker = redislock.New(rc)
	}
	return s
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.ReminderEnabled {
		if _, err := s.cron.AddFunc(s.cfg.ReminderCron, func() { s.runLogged("reminders", s.RunReminders) }); err != nil {
			return fmt.Errorf("reminder schedule %q: %w", s.cfg.ReminderCron, err)
		}
	}
	if _, err := s.cron.AddFunc(s.cfg.UploadCleanupCron, func() { s.runLogged("upload cleanup", s.RunUploadCleanup) }); err != nil {
		return fmt.Errorf("upload cleanup schedule %q: %w", s.cfg.UploadCleanupCron, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Bool("reminders", s.cfg.ReminderEnabled))
	return nil
}

// Stop waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// RunReminders sends due reminders once and reports how many went out.
func (s *Scheduler) RunReminders(ctx context.Context) (int, error) {
	var sent int
	err := s.withLock(ctx, reminderLockKey, func(ctx context.Context) error {
		var err error
		sent, err = s.reminders.SendDue(ctx, s.now())
		return err
	})
	return sent, err
}

// RunUploadCleanup removes expired cover files once.
func (s *Scheduler) RunUploadCleanup(ctx context.Context) (int, error) {
	var removed int
	err := s.withLock(ctx, cleanupLockKey, func(ctx context.Context) error {
		var err error
		removed, err = s.uploads.CleanupExpired(ctx, s.now())
		return err
	})
	return removed, err
}

func (s *Scheduler) runLogged(name string, job func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := job(ctx)
	if err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("job done", zap.String("job", name), zap.Int("count", n))
	}
}

func (s *Scheduler) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	lock, err := s.locker.Obtain(ctx, key, jobTimeout, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		s.log.Debug("job skipped, lock held elsewhere", zap.String("lock", key))
		return nil
	}
	if err != nil {
		// redis trouble should not stop reminders from going out
		s.log.Warn("job lock unavailable, running unlocked", zap.String("lock", key), zap.Error(err))
		return fn(ctx)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.log.Warn("release job lock", zap.String("lock", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}
