package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/officehub-api/internal/dto"
)

type sweepCounter struct {
	overdue  atomic.Int32
	upcoming atomic.Int32
}

func (s *sweepCounter) Create(context.Context, dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func (s *sweepCounter) ListForUser(context.Context, uint, bool) ([]dto.NotificationResponse, error) {
	return nil, nil
}

func (s *sweepCounter) MarkRead(context.Context, uint, uint) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func (s *sweepCounter) MarkAllRead(context.Context, uint) (int64, error) {
	return 0, nil
}

func (s *sweepCounter) ScanOverdue(context.Context) (int, error) {
	s.overdue.Add(1)
	return 0, nil
}

func (s *sweepCounter) ScanUpcoming(context.Context) (int, error) {
	s.upcoming.Add(1)
	return 0, nil
}

func TestNotificationSweeperRunsUntilCancelled(t *testing.T) {
	counter := &sweepCounter{}
	sweeper := NewNotificationSweeper(counter, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return counter.overdue.Load() >= 2 && counter.upcoming.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNotificationSweeperDisabled(t *testing.T) {
	counter := &sweepCounter{}
	NewNotificationSweeper(counter, 0, testLogger()).Run(context.Background())
	require.Zero(t, counter.overdue.Load())
}
