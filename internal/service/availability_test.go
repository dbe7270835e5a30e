package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
)

type fakeWindowLister struct {
	windows []model.AvailabilityWindow
	err     error
}

func (f *fakeWindowLister) ListForProvider(context.Context, model.ProviderRef) ([]model.AvailabilityWindow, error) {
	return f.windows, f.err
}

type fakeOverlap struct {
	conflict bool
	err      error
}

func (f *fakeOverlap) HasBlockingOverlap(context.Context, model.ProviderRef, time.Time, time.Time) (bool, error) {
	return f.conflict, f.err
}

func studioRef() model.ProviderRef {
	return model.ProviderRef{Kind: model.ProviderStudio, ID: 9}
}

// 2026-03-03 is a Tuesday.
func tuesdayAt(hour int) time.Time {
	return time.Date(2026, 3, 3, hour, 0, 0, 0, time.UTC)
}

func TestWindowFreeDefaultBusinessHours(t *testing.T) {
	c := NewChecker(&fakeWindowLister{}, &fakeOverlap{})

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside 9-18", tuesdayAt(10), tuesdayAt(12), true},
		{"starts too early", tuesdayAt(8), tuesdayAt(10), false},
		{"ends too late", tuesdayAt(17), tuesdayAt(19), false},
		{"exactly the full day window", tuesdayAt(9), tuesdayAt(18), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.WindowFree(context.Background(), studioRef(), tt.start, tt.end)
			if err != nil {
				t.Fatalf("WindowFree: %v", err)
			}
			if got != tt.want {
				t.Errorf("WindowFree = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowFreeDeclaredWindows(t *testing.T) {
	tue := 2 // time.Tuesday
	evening := model.AvailabilityWindow{
		Weekday:     &tue,
		StartMinute: 18 * 60,
		EndMinute:   22 * 60,
	}
	c := NewChecker(&fakeWindowLister{windows: []model.AvailabilityWindow{evening}}, &fakeOverlap{})

	// Declared windows replace the default hours entirely.
	if ok, _ := c.WindowFree(context.Background(), studioRef(), tuesdayAt(10), tuesdayAt(12)); ok {
		t.Error("morning accepted despite evening-only declaration")
	}
	if ok, _ := c.WindowFree(context.Background(), studioRef(), tuesdayAt(19), tuesdayAt(21)); !ok {
		t.Error("declared evening window rejected")
	}
	// Wrong weekday.
	wedStart := tuesdayAt(19).Add(24 * time.Hour)
	if ok, _ := c.WindowFree(context.Background(), studioRef(), wedStart, wedStart.Add(time.Hour)); ok {
		t.Error("Wednesday accepted against a Tuesday-only window")
	}
}

func TestWindowFreeConflict(t *testing.T) {
	c := NewChecker(&fakeWindowLister{}, &fakeOverlap{conflict: true})
	ok, err := c.WindowFree(context.Background(), studioRef(), tuesdayAt(10), tuesdayAt(12))
	if err != nil {
		t.Fatalf("WindowFree: %v", err)
	}
	if ok {
		t.Error("conflicting booking ignored")
	}
}

func TestWindowFreeValidation(t *testing.T) {
	c := NewChecker(&fakeWindowLister{}, &fakeOverlap{})

	if _, err := c.WindowFree(context.Background(), model.ProviderRef{}, tuesdayAt(10), tuesdayAt(12)); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid provider: err = %v", err)
	}
	if _, err := c.WindowFree(context.Background(), studioRef(), tuesdayAt(12), tuesdayAt(10)); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted window: err = %v", err)
	}
}

func TestWindowFreePropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	c := NewChecker(&fakeWindowLister{err: boom}, &fakeOverlap{})
	if _, err := c.WindowFree(context.Background(), studioRef(), tuesdayAt(10), tuesdayAt(12)); !errors.Is(err, boom) {
		t.Errorf("err = %v, want db error", err)
	}
}
