package models

import "time"

// Location is a plain coordinate value, optionally carrying the
// human-readable address the client resolved it from.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
	DriverOffline   DriverStatus = "offline"
)

type Driver struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Phone       string       `json:"phone,omitempty"`
	VehicleType string       `json:"vehicle_type"`
	Rating      float64      `json:"rating"` // 0..5
	Location    Location     `json:"location"`
	Status      DriverStatus `json:"status"`
	Updated     time.Time    `json:"updated"`
}

type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideAssigned   RideStatus = "assigned"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// RideRequest is the system-of-record ride document. It is created in
// Pending state by the request flow and mutated only by the matcher
// until it reaches Accepted; later transitions belong to the
// ride-progress side of the system.
type RideRequest struct {
	ID               string     `json:"id"`
	PassengerID      string     `json:"passenger_id"`
	PassengerName    string     `json:"passenger_name"`
	PassengerPhone   string     `json:"passenger_phone,omitempty"`
	PassengerRating  float64    `json:"passenger_rating,omitempty"`
	Pickup           Location   `json:"pickup"`
	Destination      *Location  `json:"destination,omitempty"`
	VehicleType      string     `json:"vehicle_type"`
	EstimatedPrice   float64    `json:"estimated_price"`
	EstimatedKm      float64    `json:"estimated_distance_km"`
	EstimatedSec     float64    `json:"estimated_duration_seconds"`
	Status           RideStatus `json:"status"`
	AssignedDriverID string     `json:"assigned_driver_id,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	RejectedBy       []string   `json:"rejected_by"`
	DispatchAttempts int        `json:"dispatch_attempts"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Rejected reports whether driverID already declined (or timed out on)
// this ride.
func (r *RideRequest) Rejected(driverID string) bool {
	for _, id := range r.RejectedBy {
		if id == driverID {
			return true
		}
	}
	return false
}

const NotificationRideRequest = "ride_request"

// Notification is the ephemeral offer record a driver polls for. It is
// keyed by (driverID, rideID) and deleted on accept, decline or expiry.
type Notification struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id"`
	DriverID  string    `json:"driver_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (n *Notification) Expired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// RideEvent is the lifecycle event published to the ride-events topic.
type RideEvent struct {
	Type     string    `json:"type"` // ride.assigned, ride.accepted, ...
	RideID   string    `json:"ride_id"`
	DriverID string    `json:"driver_id,omitempty"`
	At       time.Time `json:"at"`
}
