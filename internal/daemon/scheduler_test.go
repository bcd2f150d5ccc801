package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

type fakeRestarter struct {
	mu        sync.Mutex
	policy    stream.AutoRestart
	status    stream.Status
	statusErr error
	restarts  int
}

func (f *fakeRestarter) AutoRestart() (stream.AutoRestart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy, nil
}

func (f *fakeRestarter) StreamStatus(context.Context) (stream.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeRestarter) RestartStream(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return "op-restart", nil
}

func (f *fakeRestarter) Restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func newTestScheduler(t *testing.T, r Restarter) *Scheduler {
	t.Helper()
	s, err := NewScheduler(r)
	require.NoError(t, err)
	s.hour = 20 * time.Millisecond
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestRunAutoRestartSkips(t *testing.T) {
	tests := []struct {
		name   string
		status stream.Status
		err    error
	}{
		{name: "timer active", status: stream.Status{Active: true, TimerActive: true}},
		{name: "stream inactive", status: stream.Status{Active: false}},
		{name: "status error", err: errors.ProcessError("systemctl failed").Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRestarter{status: tt.status, statusErr: tt.err}
			s := newTestScheduler(t, r)
			s.runAutoRestart(t.Context())
			assert.Equal(t, 0, r.Restarts())
		})
	}
}

func TestRunAutoRestartRestartsActiveStream(t *testing.T) {
	r := &fakeRestarter{status: stream.Status{Active: true}}
	s := newTestScheduler(t, r)
	s.runAutoRestart(t.Context())
	assert.Equal(t, 1, r.Restarts())
}

func TestScheduleFollowsPolicy(t *testing.T) {
	r := &fakeRestarter{status: stream.Status{Active: true}}
	s := newTestScheduler(t, r)
	ctx := t.Context()

	require.NoError(t, s.Schedule(ctx, stream.AutoRestart{Enabled: false, IntervalHours: 2}))
	assert.False(t, s.JobScheduled())

	require.NoError(t, s.Schedule(ctx, stream.AutoRestart{Enabled: true, IntervalHours: 2}))
	assert.True(t, s.JobScheduled())
	first := s.jobID

	// Same policy keeps the job.
	require.NoError(t, s.Schedule(ctx, stream.AutoRestart{Enabled: true, IntervalHours: 2}))
	assert.Equal(t, first, s.jobID)

	require.NoError(t, s.Schedule(ctx, stream.AutoRestart{Enabled: true, IntervalHours: 3}))
	assert.NotEqual(t, first, s.jobID)

	require.NoError(t, s.Schedule(ctx, stream.AutoRestart{Enabled: false, IntervalHours: 3}))
	assert.False(t, s.JobScheduled())
}

func TestScheduledJobRestartsStream(t *testing.T) {
	r := &fakeRestarter{
		policy: stream.AutoRestart{Enabled: true, IntervalHours: 1},
		status: stream.Status{Active: true},
	}
	s := newTestScheduler(t, r)
	s.Start()
	require.NoError(t, s.Sync(t.Context()))

	assert.Eventually(t, func() bool { return r.Restarts() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
