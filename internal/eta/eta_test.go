package eta

import (
	"math"
	"testing"
	"time"

	"github.com/example/smartcabb-dispatch/internal/models"
)

func TestEstimateSecondsUsesSpeed(t *testing.T) {
	a := models.Location{Lat: 0, Lng: 0}
	b := models.Location{Lat: 1, Lng: 0} // ~111.19 km
	sec := EstimateSeconds(a, b, 10)
	if math.Abs(sec-11119.5) > 50 {
		t.Fatalf("expected ~11120s at 10 m/s, got %f", sec)
	}
}

func TestEstimateSecondsDefaultSpeed(t *testing.T) {
	a := models.Location{Lat: 0, Lng: 0}
	b := models.Location{Lat: 0.01, Lng: 0}
	if s1, s2 := EstimateSeconds(a, b, 0), EstimateSeconds(a, b, 8); s1 != s2 {
		t.Fatalf("zero speed should fall back to default: %f vs %f", s1, s2)
	}
}

func TestFare(t *testing.T) {
	if got := Fare(4, 1000, 500); got != 3000 {
		t.Fatalf("fare = %f, want 3000", got)
	}
}

func TestCacheHitAndExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	a := models.Location{Lat: 1, Lng: 2}
	b := models.Location{Lat: 3, Lng: 4}

	if _, ok := c.Get(a, b); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Set(a, b, 42)
	if v, ok := c.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected 42, got %f ok=%v", v, ok)
	}
	time.Sleep(15 * time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expected expiry")
	}
}
