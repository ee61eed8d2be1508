package archive

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// PostgresArchive keeps a durable record of rides once they settle
// (accepted or cancelled). The KV store stays the system of record for
// live dispatch; this table feeds reporting and history.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresArchive{db: db}, nil
}

func (p *PostgresArchive) SaveRide(ctx context.Context, r *models.RideRequest) error {
	var destLat, destLng sql.NullFloat64
	if r.Destination != nil {
		destLat = sql.NullFloat64{Float64: r.Destination.Lat, Valid: true}
		destLng = sql.NullFloat64{Float64: r.Destination.Lng, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(id, passenger_id, driver_id, vehicle_type,
			pickup_lat, pickup_lng, dest_lat, dest_lng,
			estimated_price, estimated_km, status, dispatch_attempts, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			status = EXCLUDED.status,
			dispatch_attempts = EXCLUDED.dispatch_attempts`,
		r.ID, r.PassengerID, r.AssignedDriverID, r.VehicleType,
		r.Pickup.Lat, r.Pickup.Lng, destLat, destLng,
		r.EstimatedPrice, r.EstimatedKm, string(r.Status), r.DispatchAttempts, r.CreatedAt)
	return err
}

func (p *PostgresArchive) Close() error { return p.db.Close() }
