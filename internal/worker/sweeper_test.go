package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"novel-vote-server/internal/generation"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeRounds struct {
	calls atomic.Int32
	limit int
	err   error
}

func (f *fakeRounds) CloseExpiredRounds(_ context.Context, limit int) (int, int, error) {
	f.calls.Add(1)
	f.limit = limit
	return 1, 0, f.err
}

type fakeStale struct {
	calls      atomic.Int32
	staleAfter time.Duration
}

func (f *fakeStale) RecoverStale(_ context.Context, staleAfter time.Duration, _ int) (generation.RecoveryResult, error) {
	f.calls.Add(1)
	f.staleAfter = staleAfter
	return generation.RecoveryResult{Redispatched: 1}, nil
}

type fakeCleaner struct{ calls atomic.Int32 }

func (f *fakeCleaner) CleanupTasks(time.Duration) int {
	f.calls.Add(1)
	return 0
}

func TestSweep_RunsAllSteps(t *testing.T) {
	rounds := &fakeRounds{}
	stale := &fakeStale{}
	cleaner := &fakeCleaner{}
	s := NewSweeper(rounds, stale, cleaner, SweeperConfig{StaleAfter: 10 * time.Minute}, zap.NewNop())

	s.Sweep(context.Background())

	assert.Equal(t, int32(1), rounds.calls.Load())
	assert.Equal(t, defaultSweepBatch, rounds.limit)
	assert.Equal(t, int32(1), stale.calls.Load())
	assert.Equal(t, 10*time.Minute, stale.staleAfter)
	assert.Equal(t, int32(1), cleaner.calls.Load())
}

func TestSweep_ContinuesAfterRoundError(t *testing.T) {
	rounds := &fakeRounds{err: errors.New("db down")}
	stale := &fakeStale{}
	s := NewSweeper(rounds, stale, nil, SweeperConfig{StaleAfter: time.Minute}, zap.NewNop())

	s.Sweep(context.Background())

	assert.Equal(t, int32(1), stale.calls.Load())
}

func TestSweep_StaleRecoveryDisabled(t *testing.T) {
	stale := &fakeStale{}
	s := NewSweeper(nil, stale, nil, SweeperConfig{}, zap.NewNop())

	s.Sweep(context.Background())

	assert.Equal(t, int32(0), stale.calls.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	rounds := &fakeRounds{}
	s := NewSweeper(rounds, nil, nil, SweeperConfig{Interval: 5 * time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rounds.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
