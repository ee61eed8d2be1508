package matcher

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/smartcabb-dispatch/internal/geo"
	"github.com/example/smartcabb-dispatch/internal/models"
	"github.com/example/smartcabb-dispatch/internal/store"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	e := New(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.Now = func() time.Time { return testNow }
	return e, mem
}

func addDriver(t *testing.T, mem *store.Memory, id string, lat, lng, rating float64, vt string, status models.DriverStatus) {
	t.Helper()
	d := &models.Driver{
		ID: id, Name: "drv-" + id, VehicleType: vt, Rating: rating,
		Location: models.Location{Lat: lat, Lng: lng}, Status: status,
	}
	if err := mem.PutDriver(context.Background(), d); err != nil {
		t.Fatal(err)
	}
}

func addPendingRide(t *testing.T, mem *store.Memory, id string, lat, lng float64, vt string) {
	t.Helper()
	r := &models.RideRequest{
		ID: id, PassengerID: "p1", PassengerName: "Pat",
		Pickup:      models.Location{Lat: lat, Lng: lng},
		VehicleType: vt, Status: models.RidePending,
		RejectedBy: []string{}, CreatedAt: testNow,
	}
	if err := mem.PutRide(context.Background(), r); err != nil {
		t.Fatal(err)
	}
}

// Kinshasa city centre.
const kinLat, kinLng = -4.3276, 15.3136

func TestFindNearbyDriversProximityOrder(t *testing.T) {
	e, mem := newTestEngine(t)
	pickup := models.Location{Lat: kinLat, Lng: kinLng}
	// ~0.8 km and ~2.1 km north of pickup (1 deg lat ~= 111.2 km)
	addDriver(t, mem, "near", kinLat+0.0072, kinLng, 4.2, "economique", models.DriverAvailable)
	addDriver(t, mem, "far", kinLat+0.0189, kinLng, 5.0, "economique", models.DriverAvailable)

	got, err := e.FindNearbyDrivers(context.Background(), pickup, "economique", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "far" {
		t.Fatalf("expected [near far], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestFindNearbyDriversRatingTieBreak(t *testing.T) {
	e, mem := newTestEngine(t)
	addDriver(t, mem, "low", 0, 0, 4.0, "standard", models.DriverAvailable)
	addDriver(t, mem, "high", 0, 0, 5.0, "standard", models.DriverAvailable)

	got, err := e.FindNearbyDrivers(context.Background(), models.Location{}, "standard", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "high" {
		t.Fatalf("expected high-rated driver first, got %+v", got)
	}
}

func TestFindNearbyDriversExclusions(t *testing.T) {
	e, mem := newTestEngine(t)
	pickup := models.Location{Lat: 0, Lng: 0}
	addDriver(t, mem, "ok", 0.001, 0, 4.5, "standard", models.DriverAvailable)
	addDriver(t, mem, "wrong-type", 0.001, 0, 5.0, "premium", models.DriverAvailable)
	addDriver(t, mem, "busy", 0.001, 0, 5.0, "standard", models.DriverBusy)
	addDriver(t, mem, "offline", 0.001, 0, 5.0, "standard", models.DriverOffline)
	// just past the 5 km radius
	addDriver(t, mem, "too-far", 0.0455, 0, 5.0, "standard", models.DriverAvailable)

	got, err := e.FindNearbyDrivers(context.Background(), pickup, "standard", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("expected only [ok], got %+v", got)
	}
}

func TestFindNearbyDriversEmptyIsNotError(t *testing.T) {
	e, _ := newTestEngine(t)
	got, err := e.FindNearbyDrivers(context.Background(), models.Location{}, "standard", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestFindNearbyDriversInvalidPickup(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.FindNearbyDrivers(context.Background(), models.Location{Lat: 91, Lng: 0}, "standard", 5)
	if err != geo.ErrInvalidCoordinate {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestAssignSetsStatusAndNotification(t *testing.T) {
	e, mem := newTestEngine(t)
	addPendingRide(t, mem, "r1", 0, 0, "standard")

	ok, err := e.AssignRideToDriver(context.Background(), "r1", "d1")
	if err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != "d1" {
		t.Fatalf("ride not assigned: %+v", ride)
	}
	if ride.AssignedAt == nil || !ride.AssignedAt.Equal(testNow) {
		t.Fatalf("assignedAt not set: %+v", ride.AssignedAt)
	}
	n, err := mem.GetNotification(context.Background(), "d1", "r1")
	if err != nil {
		t.Fatalf("notification missing: %v", err)
	}
	if want := testNow.Add(DefaultNotificationTTL); !n.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", n.ExpiresAt, want)
	}
}

func TestAssignRefusesNonPending(t *testing.T) {
	e, mem := newTestEngine(t)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	if ok, _ := e.AssignRideToDriver(context.Background(), "r1", "d1"); !ok {
		t.Fatal("first assign should succeed")
	}
	before, _ := mem.GetRide(context.Background(), "r1")

	ok, err := e.AssignRideToDriver(context.Background(), "r1", "d2")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second assign must fail")
	}
	after, _ := mem.GetRide(context.Background(), "r1")
	if after.AssignedDriverID != before.AssignedDriverID || after.Status != before.Status {
		t.Fatalf("ride mutated by refused assign: %+v", after)
	}
}

func TestAssignMissingRide(t *testing.T) {
	e, _ := newTestEngine(t)
	ok, err := e.AssignRideToDriver(context.Background(), "nope", "d1")
	if err != nil || ok {
		t.Fatalf("expected false with nil error, got ok=%v err=%v", ok, err)
	}
}

func TestAcceptOwnershipCheck(t *testing.T) {
	e, mem := newTestEngine(t)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")

	ok, err := e.AcceptRide(context.Background(), "r1", "d2")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("accept by the wrong driver must fail")
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != "d1" {
		t.Fatalf("ride mutated by refused accept: %+v", ride)
	}
}

func TestAcceptMarksDriverBusyAndDeletesNotification(t *testing.T) {
	e, mem := newTestEngine(t)
	addDriver(t, mem, "d1", 0.001, 0, 4.5, "standard", models.DriverAvailable)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")

	ok, err := e.AcceptRide(context.Background(), "r1", "d1")
	if err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAccepted || ride.AcceptedAt == nil {
		t.Fatalf("ride not accepted: %+v", ride)
	}
	drv, _ := mem.GetDriver(context.Background(), "d1")
	if drv.Status != models.DriverBusy {
		t.Fatalf("driver status = %s, want busy", drv.Status)
	}
	if _, err := mem.GetNotification(context.Background(), "d1", "r1"); err != store.ErrNotFound {
		t.Fatalf("notification should be gone, got %v", err)
	}
}

func TestDeclineRedispatchesToNextDriver(t *testing.T) {
	e, mem := newTestEngine(t)
	addDriver(t, mem, "d1", 0.001, 0, 4.5, "standard", models.DriverAvailable)
	addDriver(t, mem, "d2", 0.002, 0, 4.0, "standard", models.DriverAvailable)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")

	ok, err := e.DeclineRide(context.Background(), "r1", "d1")
	if err != nil || !ok {
		t.Fatalf("decline: ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if !ride.Rejected("d1") {
		t.Fatal("d1 missing from rejectedBy")
	}
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != "d2" {
		t.Fatalf("expected re-assignment to d2, got %+v", ride)
	}
	if _, err := mem.GetNotification(context.Background(), "d1", "r1"); err != store.ErrNotFound {
		t.Fatal("d1 notification should be deleted")
	}
	if _, err := mem.GetNotification(context.Background(), "d2", "r1"); err != nil {
		t.Fatalf("d2 notification missing: %v", err)
	}
}

func TestDeclineIdempotentOnRejectedSet(t *testing.T) {
	e, mem := newTestEngine(t)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")

	for i := 0; i < 3; i++ {
		if _, err := e.DeclineRide(context.Background(), "r1", "d1"); err != nil {
			t.Fatal(err)
		}
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	count := 0
	for _, id := range ride.RejectedBy {
		if id == "d1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("d1 appears %d times in rejectedBy", count)
	}
}

func TestRedispatchNeverPicksRejecter(t *testing.T) {
	e, mem := newTestEngine(t)
	// d1 is closest and would win every search
	addDriver(t, mem, "d1", 0.001, 0, 5.0, "standard", models.DriverAvailable)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")
	e.DeclineRide(context.Background(), "r1", "d1")

	ok, err := e.FindAndAssignDriver(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("re-dispatch assigned the rejecting driver")
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RidePending || ride.AssignedDriverID != "" {
		t.Fatalf("ride should stay pending, got %+v", ride)
	}
}

func TestRedispatchUsesWiderRadius(t *testing.T) {
	e, mem := newTestEngine(t)
	// ~8 km away: outside the 5 km initial radius, inside 10 km
	addDriver(t, mem, "far", 0.072, 0, 4.5, "standard", models.DriverAvailable)
	addPendingRide(t, mem, "r1", 0, 0, "standard")

	if ok, _ := e.FindAndAssignDriver(context.Background(), "r1"); ok {
		t.Fatal("first dispatch should find nobody within 5 km")
	}
	// a later attempt widens to 10 km
	ok, err := e.FindAndAssignDriver(context.Background(), "r1")
	if err != nil || !ok {
		t.Fatalf("re-dispatch: ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.AssignedDriverID != "far" {
		t.Fatalf("expected far driver, got %+v", ride)
	}
}

func TestTimeoutEquivalentToDecline(t *testing.T) {
	run := func(t *testing.T, act func(e *Engine) (bool, error)) *models.RideRequest {
		e, mem := newTestEngine(t)
		addDriver(t, mem, "d2", 0.002, 0, 4.0, "standard", models.DriverAvailable)
		addPendingRide(t, mem, "r1", 0, 0, "standard")
		e.AssignRideToDriver(context.Background(), "r1", "d1")
		if _, err := act(e); err != nil {
			t.Fatal(err)
		}
		ride, _ := mem.GetRide(context.Background(), "r1")
		return ride
	}
	declined := run(t, func(e *Engine) (bool, error) {
		return e.DeclineRide(context.Background(), "r1", "d1")
	})
	timedOut := run(t, func(e *Engine) (bool, error) {
		return e.HandleRideTimeout(context.Background(), "r1", "d1")
	})
	if declined.Status != timedOut.Status ||
		declined.AssignedDriverID != timedOut.AssignedDriverID ||
		len(declined.RejectedBy) != len(timedOut.RejectedBy) {
		t.Fatalf("timeout result differs from decline:\n%+v\n%+v", declined, timedOut)
	}
}

func TestTimeoutNoopAfterAccept(t *testing.T) {
	e, mem := newTestEngine(t)
	addDriver(t, mem, "d1", 0.001, 0, 4.5, "standard", models.DriverAvailable)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")
	e.AcceptRide(context.Background(), "r1", "d1")

	ok, err := e.HandleRideTimeout(context.Background(), "r1", "d1")
	if err != nil || ok {
		t.Fatalf("timeout after accept must be a no-op, got ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAccepted || ride.AssignedDriverID != "d1" {
		t.Fatalf("accepted ride mutated by timeout: %+v", ride)
	}
}

func TestTimeoutWrongDriverNoop(t *testing.T) {
	e, mem := newTestEngine(t)
	addPendingRide(t, mem, "r1", 0, 0, "standard")
	e.AssignRideToDriver(context.Background(), "r1", "d1")

	ok, err := e.HandleRideTimeout(context.Background(), "r1", "d9")
	if err != nil || ok {
		t.Fatalf("expected no-op, got ok=%v err=%v", ok, err)
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAssigned || ride.AssignedDriverID != "d1" {
		t.Fatalf("ride mutated: %+v", ride)
	}
}

func TestCancelledRideIsLeftAlone(t *testing.T) {
	e, mem := newTestEngine(t)
	r := &models.RideRequest{ID: "r1", Status: models.RideCancelled, VehicleType: "standard", CreatedAt: testNow}
	mem.PutRide(context.Background(), r)

	if ok, _ := e.FindAndAssignDriver(context.Background(), "r1"); ok {
		t.Fatal("dispatch must not touch a cancelled ride")
	}
	if ok, _ := e.DeclineRide(context.Background(), "r1", "d1"); ok {
		t.Fatal("decline must not touch a cancelled ride")
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideCancelled {
		t.Fatalf("status changed: %s", ride.Status)
	}
}

func TestMaxAttemptsCancelsRide(t *testing.T) {
	e, mem := newTestEngine(t)
	e.MaxAttempts = 2
	addPendingRide(t, mem, "r1", 0, 0, "standard")

	if ok, _ := e.FindAndAssignDriver(context.Background(), "r1"); ok {
		t.Fatal("no drivers exist, dispatch cannot succeed")
	}
	ride, _ := mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RidePending || ride.DispatchAttempts != 1 {
		t.Fatalf("after first attempt: %+v", ride)
	}

	e.FindAndAssignDriver(context.Background(), "r1")
	ride, _ = mem.GetRide(context.Background(), "r1")
	if ride.Status != models.RideCancelled {
		t.Fatalf("expected cancellation after %d attempts, got %+v", e.MaxAttempts, ride)
	}
}
