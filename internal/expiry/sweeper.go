package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/smartcabb-dispatch/internal/store"
)

// TimeoutHandler is what the sweeper drives; the matcher engine
// satisfies it.
type TimeoutHandler interface {
	HandleRideTimeout(ctx context.Context, rideID, driverID string) (bool, error)
}

// Sweeper periodically scans the notification outbox and fires the
// timeout path for every entry past its ExpiresAt. The matcher never
// owns a timer; enforcement of the advisory expiry lives here.
type Sweeper struct {
	Notifications store.NotificationStore
	Handler       TimeoutHandler
	Logger        *slog.Logger
	Interval      time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

const DefaultInterval = 2 * time.Second

func New(ns store.NotificationStore, h TimeoutHandler, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{Notifications: ns, Handler: h, Logger: logger, Interval: interval, Now: time.Now}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exposed separately so tests can drive it
// without the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	ns, err := s.Notifications.ListNotifications(ctx)
	if err != nil {
		s.Logger.Warn("notification scan failed", "error", err)
		return
	}
	now := s.Now()
	for _, n := range ns {
		if !n.Expired(now) {
			continue
		}
		if _, err := s.Handler.HandleRideTimeout(ctx, n.RideID, n.DriverID); err != nil {
			s.Logger.Warn("timeout handling failed",
				"ride_id", n.RideID, "driver_id", n.DriverID, "error", err)
		}
	}
}
