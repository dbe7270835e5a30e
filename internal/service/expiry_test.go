package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDeleter struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeDeleter) DeleteExpiredReservations(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestSweepOnceUsesTTLCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeDeleter{deleted: 3}
	s := NewExpirySweeper(store, &fakeClock{at: now}, 15*time.Minute, 5*time.Minute)

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	want := now.Add(-15 * time.Minute)
	if !store.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoff, want)
	}
}

func TestSweepOncePropagatesError(t *testing.T) {
	boom := errors.New("db down")
	s := NewExpirySweeper(&fakeDeleter{err: boom}, nil, 15*time.Minute, 5*time.Minute)
	if _, err := s.SweepOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want db error", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeDeleter{}
	s := NewExpirySweeper(store, nil, time.Minute, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if store.calls == 0 {
		t.Error("sweeper never ticked")
	}
}
