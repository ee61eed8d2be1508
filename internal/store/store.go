package store

import (
	"context"
	"errors"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// ErrNotFound is returned when a key is absent. Callers in the matcher
// translate it into a boolean failure rather than propagating it: a
// ride or driver vanishing mid-dispatch is an expected race, not a
// fault.
var ErrNotFound = errors.New("not found")

// Key conventions, preserved for compatibility with the rest of the
// platform:
//
//	ride:<rideId>
//	driver:<driverId>
//	notification:driver:<driverId>:<rideId>
func RideKey(rideID string) string     { return "ride:" + rideID }
func DriverKey(driverID string) string { return "driver:" + driverID }
func NotificationKey(driverID, rideID string) string {
	return "notification:driver:" + driverID + ":" + rideID
}

// DriverStore is the driver directory. The matcher reads the full
// directory for candidate search and writes status only.
type DriverStore interface {
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	PutDriver(ctx context.Context, d *models.Driver) error
	ListDrivers(ctx context.Context) ([]*models.Driver, error)
}

type RideStore interface {
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
	PutRide(ctx context.Context, r *models.RideRequest) error
}

// NotificationStore is the offer outbox consumed by client polling.
type NotificationStore interface {
	GetNotification(ctx context.Context, driverID, rideID string) (*models.Notification, error)
	PutNotification(ctx context.Context, n *models.Notification) error
	DeleteNotification(ctx context.Context, driverID, rideID string) error
	// ListDriverNotifications returns all outstanding entries for one
	// driver, expired or not; callers filter on ExpiresAt.
	ListDriverNotifications(ctx context.Context, driverID string) ([]*models.Notification, error)
	// ListNotifications returns every outstanding entry. Used by the
	// expiry sweeper.
	ListNotifications(ctx context.Context) ([]*models.Notification, error)
}

// Store bundles the three per-entity views. Both the Redis and the
// in-memory implementations satisfy all of them on one value.
type Store interface {
	DriverStore
	RideStore
	NotificationStore
}
