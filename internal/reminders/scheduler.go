package reminders

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voicedeck/internal/ports"
	"voicedeck/internal/timers"
)

const defaultCheckInterval = 15 * time.Second

// Scheduler periodically sweeps the store for due reminders and hands them to
// the notifier. One-shot reminders fire once; repeating reminders roll to
// their next occurrence after each delivery.
type Scheduler struct {
	store    *Store
	notifier ports.Notifier
	registry *timers.Registry
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	handle timers.Handle
}

func NewScheduler(store *Store, notifier ports.Notifier, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		registry: timers.NewRegistry(),
		interval: interval,
		log:      log.With().Str("component", "reminder_scheduler").Logger(),
		now:      time.Now,
	}
}

// Start begins the periodic sweep. The context bounds each notification
// delivery, not the scheduler lifetime; use Stop for that.
func (s *Scheduler) Start(ctx context.Context) {
	if s.handle != 0 {
		return
	}
	s.handle = s.registry.Every(s.interval, func() { s.sweep(ctx) })
	s.log.Debug().Dur("interval", s.interval).Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	s.registry.Close()
	s.handle = 0
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()
	for _, r := range s.store.Due(now) {
		deliverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.notifier.Notify(deliverCtx, *r)
		cancel()
		if err != nil {
			// Leave the reminder pending so the next sweep retries it.
			s.log.Warn().Err(err).Str("id", r.ID).Msg("notification failed")
			continue
		}
		if err := s.store.MarkNotified(r.ID, now); err != nil {
			s.log.Error().Err(err).Str("id", r.ID).Msg("failed to record notification")
		}
	}
}
