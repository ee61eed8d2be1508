package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/example/smartcabb-dispatch/internal/geo"
	"github.com/example/smartcabb-dispatch/internal/models"
	"github.com/example/smartcabb-dispatch/internal/observability"
	"github.com/example/smartcabb-dispatch/internal/store"
)

// Pusher delivers a notification to a connected driver out of band.
// Polling against the outbox is the delivery contract; push is
// best-effort and failures are ignored.
type Pusher interface {
	Notify(driverID string, n *models.Notification) error
}

// Publisher emits ride lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev models.RideEvent) error
}

// Archiver records rides in long-term storage once they reach a
// settled state (accepted or cancelled).
type Archiver interface {
	SaveRide(ctx context.Context, r *models.RideRequest) error
}

// Engine runs dispatch: candidate search, assignment, accept/decline
// and timeout-driven re-dispatch against the shared KV store.
//
// Mutating operations take a per-ride lock, so assign/accept/decline/
// timeout are linearized per ride ID within the process. There is no
// cross-ride locking; dispatch for different rides proceeds
// concurrently.
type Engine struct {
	Store  store.Store
	Logger *slog.Logger

	Push    Pusher    // optional
	Events  Publisher // optional
	Archive Archiver  // optional

	// DispatchRadiusKm bounds the first candidate search for a ride;
	// RedispatchRadiusKm is the wider net used once drivers have
	// already declined.
	DispatchRadiusKm   float64
	RedispatchRadiusKm float64
	NotificationTTL    time.Duration

	// MaxAttempts > 0 cancels a ride after that many re-dispatch
	// attempts found no candidates. Zero leaves exhausted rides
	// Pending for a later external retry.
	MaxAttempts int

	// Now is swappable for tests.
	Now func() time.Time

	locks *rideLocks
}

const (
	DefaultDispatchRadiusKm   = 5.0
	DefaultRedispatchRadiusKm = 10.0
	DefaultNotificationTTL    = 10 * time.Second
)

func New(st store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		Store:              st,
		Logger:             logger,
		DispatchRadiusKm:   DefaultDispatchRadiusKm,
		RedispatchRadiusKm: DefaultRedispatchRadiusKm,
		NotificationTTL:    DefaultNotificationTTL,
		Now:                time.Now,
		locks:              newRideLocks(),
	}
}

// FindNearbyDrivers returns available drivers of the requested vehicle
// type within maxDistanceKm of pickup, nearest first, ties broken by
// higher rating. An empty result is not an error. Pickup coordinates
// are validated up front; drivers with corrupt stored coordinates are
// skipped.
func (e *Engine) FindNearbyDrivers(ctx context.Context, pickup models.Location, vehicleType string, maxDistanceKm float64) ([]models.Driver, error) {
	if err := geo.Validate(pickup); err != nil {
		return nil, err
	}
	drivers, err := e.Store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	type candidate struct {
		d    models.Driver
		dist float64
	}
	cands := make([]candidate, 0, len(drivers))
	for _, d := range drivers {
		if d.Status != models.DriverAvailable || d.VehicleType != vehicleType {
			continue
		}
		if geo.Validate(d.Location) != nil {
			e.Logger.Warn("driver has invalid coordinates, skipping", "driver_id", d.ID)
			continue
		}
		dist := geo.DistanceKm(pickup, d.Location)
		if dist > maxDistanceKm {
			continue
		}
		cands = append(cands, candidate{d: *d, dist: dist})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].d.Rating > cands[j].d.Rating
	})
	out := make([]models.Driver, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.d)
	}
	return out, nil
}

// AssignRideToDriver moves a Pending ride to Assigned and writes the
// offer notification. It reports false without mutating anything when
// the ride is gone or no longer Pending; concurrent dispatch attempts
// make both outcomes routine.
func (e *Engine) AssignRideToDriver(ctx context.Context, rideID, driverID string) (bool, error) {
	e.locks.lock(rideID)
	defer e.locks.unlock(rideID)
	return e.assign(ctx, rideID, driverID)
}

func (e *Engine) assign(ctx context.Context, rideID, driverID string) (bool, error) {
	ride, ok, err := e.loadRide(ctx, rideID, "assign")
	if !ok || err != nil {
		return false, err
	}
	if ride.Status != models.RidePending {
		e.Logger.Warn("assign refused: ride not pending",
			"ride_id", rideID, "driver_id", driverID, "status", string(ride.Status))
		return false, nil
	}

	now := e.Now()
	ride.Status = models.RideAssigned
	ride.AssignedDriverID = driverID
	ride.AssignedAt = &now
	if err := e.Store.PutRide(ctx, ride); err != nil {
		return false, err
	}

	n := &models.Notification{
		Type:      models.NotificationRideRequest,
		RideID:    rideID,
		DriverID:  driverID,
		CreatedAt: now,
		ExpiresAt: now.Add(e.NotificationTTL),
	}
	if err := e.Store.PutNotification(ctx, n); err != nil {
		return false, err
	}

	if e.Push != nil {
		if err := e.Push.Notify(driverID, n); err != nil {
			e.Logger.Debug("push failed, driver will poll", "driver_id", driverID, "error", err)
		}
	}
	e.publish(ctx, "ride.assigned", rideID, driverID)
	observability.AssignmentsTotal.Inc()
	e.Logger.Info("ride assigned", "ride_id", rideID, "driver_id", driverID,
		"expires_at", n.ExpiresAt)
	return true, nil
}

// AcceptRide confirms an assignment. The ride must still be Assigned
// to exactly this driver; any mismatch means a decline, timeout or
// reassignment won the race, and the call reports false with no
// mutation.
func (e *Engine) AcceptRide(ctx context.Context, rideID, driverID string) (bool, error) {
	e.locks.lock(rideID)
	defer e.locks.unlock(rideID)

	ride, ok, err := e.loadRide(ctx, rideID, "accept")
	if !ok || err != nil {
		return false, err
	}
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != driverID {
		e.Logger.Warn("accept refused",
			"ride_id", rideID, "driver_id", driverID,
			"status", string(ride.Status), "assigned_to", ride.AssignedDriverID)
		return false, nil
	}

	now := e.Now()
	ride.Status = models.RideAccepted
	ride.AcceptedAt = &now
	if err := e.Store.PutRide(ctx, ride); err != nil {
		return false, err
	}

	driver, err := e.Store.GetDriver(ctx, driverID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.Logger.Warn("accepting driver missing from directory", "driver_id", driverID)
	case err != nil:
		return false, err
	default:
		driver.Status = models.DriverBusy
		if err := e.Store.PutDriver(ctx, driver); err != nil {
			return false, err
		}
	}

	if err := e.Store.DeleteNotification(ctx, driverID, rideID); err != nil {
		return false, err
	}
	e.publish(ctx, "ride.accepted", rideID, driverID)
	e.archiveRide(ctx, ride)
	observability.AcceptsTotal.Inc()
	e.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return true, nil
}

// DeclineRide records the refusal, returns the ride to Pending and
// immediately attempts re-dispatch; the decline is not complete until
// the next-candidate search has run. A driver lands in RejectedBy at
// most once no matter how often the decline is retried.
func (e *Engine) DeclineRide(ctx context.Context, rideID, driverID string) (bool, error) {
	e.locks.lock(rideID)
	defer e.locks.unlock(rideID)
	return e.decline(ctx, rideID, driverID)
}

func (e *Engine) decline(ctx context.Context, rideID, driverID string) (bool, error) {
	ride, ok, err := e.loadRide(ctx, rideID, "decline")
	if !ok || err != nil {
		return false, err
	}
	if ride.Status != models.RideAssigned && ride.Status != models.RidePending {
		e.Logger.Warn("decline refused: ride moved on",
			"ride_id", rideID, "driver_id", driverID, "status", string(ride.Status))
		return false, nil
	}

	if !ride.Rejected(driverID) {
		ride.RejectedBy = append(ride.RejectedBy, driverID)
	}
	ride.Status = models.RidePending
	ride.AssignedDriverID = ""
	ride.AssignedAt = nil
	if err := e.Store.PutRide(ctx, ride); err != nil {
		return false, err
	}
	if err := e.Store.DeleteNotification(ctx, driverID, rideID); err != nil {
		return false, err
	}
	e.publish(ctx, "ride.declined", rideID, driverID)
	observability.DeclinesTotal.Inc()
	e.Logger.Info("ride declined", "ride_id", rideID, "driver_id", driverID)

	if _, err := e.findAndAssign(ctx, rideID); err != nil {
		return false, err
	}
	return true, nil
}

// FindAndAssignDriver searches for a candidate and assigns the ride to
// the nearest one, skipping every driver that already declined. The
// first attempt for a ride uses the initial dispatch radius; once any
// driver has declined the wider re-dispatch radius applies. False with
// a nil error means no eligible candidate was found and the ride is
// still Pending.
func (e *Engine) FindAndAssignDriver(ctx context.Context, rideID string) (bool, error) {
	e.locks.lock(rideID)
	defer e.locks.unlock(rideID)
	return e.findAndAssign(ctx, rideID)
}

func (e *Engine) findAndAssign(ctx context.Context, rideID string) (bool, error) {
	ride, ok, err := e.loadRide(ctx, rideID, "dispatch")
	if !ok || err != nil {
		return false, err
	}
	if ride.Status != models.RidePending {
		e.Logger.Warn("dispatch refused: ride not pending",
			"ride_id", rideID, "status", string(ride.Status))
		return false, nil
	}

	radius := e.DispatchRadiusKm
	if len(ride.RejectedBy) > 0 || ride.DispatchAttempts > 0 {
		radius = e.RedispatchRadiusKm
	}
	cands, err := e.FindNearbyDrivers(ctx, ride.Pickup, ride.VehicleType, radius)
	if err != nil {
		return false, err
	}
	for _, d := range cands {
		if ride.Rejected(d.ID) {
			continue
		}
		return e.assign(ctx, rideID, d.ID)
	}

	ride.DispatchAttempts++
	observability.DispatchEmptyTotal.Inc()
	if e.MaxAttempts > 0 && ride.DispatchAttempts >= e.MaxAttempts {
		ride.Status = models.RideCancelled
		if err := e.Store.PutRide(ctx, ride); err != nil {
			return false, err
		}
		e.publish(ctx, "ride.cancelled", rideID, "")
		e.archiveRide(ctx, ride)
		observability.CancellationsTotal.Inc()
		e.Logger.Warn("ride cancelled: dispatch attempts exhausted",
			"ride_id", rideID, "attempts", ride.DispatchAttempts)
		return false, nil
	}
	if err := e.Store.PutRide(ctx, ride); err != nil {
		return false, err
	}
	e.Logger.Info("no eligible drivers, ride stays pending",
		"ride_id", rideID, "radius_km", radius, "attempts", ride.DispatchAttempts)
	return false, nil
}

// HandleRideTimeout is invoked by the expiry sweeper once a
// notification outlives its ExpiresAt. A ride still Assigned to that
// driver is treated exactly like an explicit decline; anything else
// means the driver answered in time or the ride moved on, and the call
// is a no-op.
func (e *Engine) HandleRideTimeout(ctx context.Context, rideID, driverID string) (bool, error) {
	e.locks.lock(rideID)
	defer e.locks.unlock(rideID)

	ride, ok, err := e.loadRide(ctx, rideID, "timeout")
	if err != nil {
		return false, err
	}
	if !ok {
		// ride vanished; drop the orphaned notification so the sweeper
		// stops revisiting it
		_ = e.Store.DeleteNotification(ctx, driverID, rideID)
		return false, nil
	}
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != driverID {
		// the driver answered in time or the ride moved on; drop the
		// stale notification and leave everything else alone
		_ = e.Store.DeleteNotification(ctx, driverID, rideID)
		return false, nil
	}

	observability.TimeoutsTotal.Inc()
	e.Logger.Info("offer timed out", "ride_id", rideID, "driver_id", driverID)
	e.publish(ctx, "ride.timed_out", rideID, driverID)
	return e.decline(ctx, rideID, driverID)
}

func (e *Engine) loadRide(ctx context.Context, rideID, op string) (*models.RideRequest, bool, error) {
	ride, err := e.Store.GetRide(ctx, rideID)
	if errors.Is(err, store.ErrNotFound) {
		e.Logger.Warn("ride not found", "op", op, "ride_id", rideID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ride, true, nil
}

func (e *Engine) publish(ctx context.Context, typ, rideID, driverID string) {
	if e.Events == nil {
		return
	}
	ev := models.RideEvent{Type: typ, RideID: rideID, DriverID: driverID, At: e.Now()}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.Logger.Warn("event publish failed", "type", typ, "ride_id", rideID, "error", err)
	}
}

func (e *Engine) archiveRide(ctx context.Context, r *models.RideRequest) {
	if e.Archive == nil {
		return
	}
	if err := e.Archive.SaveRide(ctx, r); err != nil {
		e.Logger.Warn("ride archive failed", "ride_id", r.ID, "error", err)
	}
}
