package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// notificationGrace is added on top of ExpiresAt when setting the
// native Redis TTL, so the sweeper gets a chance to observe the expired
// entry before Redis drops it.
const notificationGrace = 30 * time.Second

// Redis is the production Store: one JSON document per key, listing via
// SCAN over the key prefixes.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string) *Redis {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Redis{client: c}
}

func (s *Redis) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Redis) Close() error { return s.client.Close() }

func (s *Redis) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	var d models.Driver
	if err := s.getJSON(ctx, DriverKey(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Redis) PutDriver(ctx context.Context, d *models.Driver) error {
	return s.setJSON(ctx, DriverKey(d.ID), d, 0)
}

func (s *Redis) ListDrivers(ctx context.Context) ([]*models.Driver, error) {
	keys, err := s.scan(ctx, "driver:*")
	if err != nil {
		return nil, err
	}
	out := make([]*models.Driver, 0, len(keys))
	for _, k := range keys {
		var d models.Driver
		if err := s.getJSON(ctx, k, &d); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted between scan and get
			}
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *Redis) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	var r models.RideRequest
	if err := s.getJSON(ctx, RideKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Redis) PutRide(ctx context.Context, r *models.RideRequest) error {
	return s.setJSON(ctx, RideKey(r.ID), r, 0)
}

func (s *Redis) GetNotification(ctx context.Context, driverID, rideID string) (*models.Notification, error) {
	var n models.Notification
	if err := s.getJSON(ctx, NotificationKey(driverID, rideID), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Redis) PutNotification(ctx context.Context, n *models.Notification) error {
	ttl := time.Until(n.ExpiresAt) + notificationGrace
	if ttl <= 0 {
		ttl = notificationGrace
	}
	return s.setJSON(ctx, NotificationKey(n.DriverID, n.RideID), n, ttl)
}

func (s *Redis) DeleteNotification(ctx context.Context, driverID, rideID string) error {
	return s.client.Del(ctx, NotificationKey(driverID, rideID)).Err()
}

func (s *Redis) ListDriverNotifications(ctx context.Context, driverID string) ([]*models.Notification, error) {
	return s.listNotifications(ctx, "notification:driver:"+driverID+":*")
}

func (s *Redis) ListNotifications(ctx context.Context) ([]*models.Notification, error) {
	return s.listNotifications(ctx, "notification:driver:*")
}

func (s *Redis) listNotifications(ctx context.Context, pattern string) ([]*models.Notification, error) {
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Notification, 0, len(keys))
	for _, k := range keys {
		var n models.Notification
		if err := s.getJSON(ctx, k, &n); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, &n)
	}
	return out, nil
}

func (s *Redis) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Redis) getJSON(ctx context.Context, key string, v any) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return json.Unmarshal(b, v)
}

func (s *Redis) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
