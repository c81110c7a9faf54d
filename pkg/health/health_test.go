package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusBecomesUnhealthyAfterRetries(t *testing.T) {
	s := NewStatus()
	cfg := Config{Retries: 2}

	s.Update(Result{Healthy: false}, cfg)
	require.True(t, s.Healthy)

	s.Update(Result{Healthy: false}, cfg)
	require.False(t, s.Healthy)
}

func TestStatusRecoversOnSuccess(t *testing.T) {
	s := NewStatus()
	cfg := Config{Retries: 1}
	s.Update(Result{Healthy: false}, cfg)
	require.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	require.True(t, s.Healthy)
	require.Equal(t, 0, s.ConsecutiveFailures)
}

func TestInStartPeriod(t *testing.T) {
	s := &Status{StartedAt: time.Now()}
	require.True(t, s.InStartPeriod(Config{StartPeriod: time.Minute}))
	require.False(t, s.InStartPeriod(Config{StartPeriod: 0}))
}

type fakeChecker struct{ healthy bool }

func (f *fakeChecker) Type() CheckType { return CheckTypeMetaStore }
func (f *fakeChecker) Check(ctx context.Context) Result {
	return Result{Healthy: f.healthy, CheckedAt: time.Now()}
}

func TestMonitorUpdatesStatus(t *testing.T) {
	checker := &fakeChecker{healthy: true}
	m := NewMonitor(checker, Config{Interval: 10 * time.Millisecond, Retries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	m.Stop()

	require.True(t, m.Status().Healthy)
}
