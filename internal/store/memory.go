package store

import (
	"context"
	"strings"
	"sync"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// Memory is a map-backed Store for tests and dependency-free local
// runs. Values are deep-copied on the way in and out so callers never
// share mutable state with the store.
type Memory struct {
	mu            sync.RWMutex
	drivers       map[string]models.Driver
	rides         map[string]models.RideRequest
	notifications map[string]models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		drivers:       make(map[string]models.Driver),
		rides:         make(map[string]models.RideRequest),
		notifications: make(map[string]models.Notification),
	}
}

func (m *Memory) GetDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[DriverKey(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) PutDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[DriverKey(d.ID)] = *d
	return nil
}

func (m *Memory) ListDrivers(_ context.Context) ([]*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		d := d
		out = append(out, &d)
	}
	return out, nil
}

func (m *Memory) GetRide(_ context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[RideKey(id)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := r
	cp.RejectedBy = append([]string(nil), r.RejectedBy...)
	return &cp, nil
}

func (m *Memory) PutRide(_ context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.RejectedBy = append([]string(nil), r.RejectedBy...)
	m.rides[RideKey(r.ID)] = cp
	return nil
}

func (m *Memory) GetNotification(_ context.Context, driverID, rideID string) (*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[NotificationKey(driverID, rideID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *Memory) PutNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[NotificationKey(n.DriverID, n.RideID)] = *n
	return nil
}

func (m *Memory) DeleteNotification(_ context.Context, driverID, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notifications, NotificationKey(driverID, rideID))
	return nil
}

func (m *Memory) ListDriverNotifications(_ context.Context, driverID string) ([]*models.Notification, error) {
	prefix := "notification:driver:" + driverID + ":"
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Notification
	for k, n := range m.notifications {
		if strings.HasPrefix(k, prefix) {
			n := n
			out = append(out, &n)
		}
	}
	return out, nil
}

func (m *Memory) ListNotifications(_ context.Context) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		n := n
		out = append(out, &n)
	}
	return out, nil
}
