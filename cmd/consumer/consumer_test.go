package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// fakeWriter implements DirectoryWriter for tests
type fakeWriter struct {
	fail  int // number of times to fail before succeeding
	calls int
	last  *models.Driver
}

func (f *fakeWriter) PutDriver(ctx context.Context, d *models.Driver) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("store fail")
	}
	f.last = d
	return nil
}

func TestUpdateDirectoryWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeWriter{fail: 2}
	d := &models.Driver{ID: "d1", Location: models.Location{Lat: 1, Lng: 2}, Rating: 4.5, Status: models.DriverAvailable}
	ctx := context.Background()
	start := time.Now()
	if err := updateDirectoryWithRetry(ctx, f, d, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.last == nil || f.last.ID != "d1" {
		t.Fatalf("driver not written: %+v", f.last)
	}
}

func TestUpdateDirectoryWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeWriter{fail: 5}
	d := &models.Driver{ID: "d1", Location: models.Location{Lat: 1, Lng: 2}, Rating: 4.5, Status: models.DriverAvailable}
	ctx := context.Background()
	if err := updateDirectoryWithRetry(ctx, f, d, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
