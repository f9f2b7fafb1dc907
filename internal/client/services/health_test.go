package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	checks    atomic.Int32
	refreshes atomic.Int32

	mu         sync.Mutex
	authed     bool
	checkErr   error
	refreshErr error
	// release, when set, blocks RefreshAuth until closed.
	release chan struct{}
	// checkRelease does the same for IsAuthenticated.
	checkRelease chan struct{}
}

func (c *fakeChecker) IsAuthenticated(context.Context) (bool, error) {
	c.checks.Add(1)
	c.mu.Lock()
	release := c.checkRelease
	c.mu.Unlock()
	if release != nil {
		<-release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed, c.checkErr
}

func (c *fakeChecker) RefreshAuth(context.Context) error {
	c.refreshes.Add(1)
	c.mu.Lock()
	release, err := c.release, c.refreshErr
	c.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

type reportLog struct {
	mu      sync.Mutex
	reports []HealthReport
}

func (l *reportLog) add(r HealthReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
}

func (l *reportLog) states() []HealthState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]HealthState, 0, len(l.reports))
	for _, r := range l.reports {
		out = append(out, r.State)
	}
	return out
}

func (l *reportLog) last() HealthReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports[len(l.reports)-1]
}

func newTestMonitor(t *testing.T, c *fakeChecker, cfg HealthConfig) (*SessionHealthMonitor, *fakeNav, *reportLog) {
	t.Helper()
	nav := &fakeNav{}
	rl := &reportLog{}
	m := NewSessionHealthMonitor(c, nav, cfg, logging.Discard())
	m.OnChange(rl.add)
	t.Cleanup(m.Stop)
	return m, nav, rl
}

func TestHealthMonitor_StartupCheckDetectsIssue(t *testing.T) {
	c := &fakeChecker{}
	m, _, rl := newTestMonitor(t, c, HealthConfig{StartupDelay: 10 * time.Millisecond})

	m.Start(context.Background())

	eventually(t, func() bool { return m.State() == HealthIssueDetected }, "issue detected")
	r := rl.last()
	assert.Equal(t, HealthIssueDetected, r.State)
	assert.Equal(t, []string{ActionRefresh, ActionReload}, r.Actions)
	assert.False(t, r.Offline)
	assert.EqualValues(t, 1, c.checks.Load())
}

func TestHealthMonitor_StartupCheckValidIsSilent(t *testing.T) {
	c := &fakeChecker{authed: true}
	m, _, rl := newTestMonitor(t, c, HealthConfig{StartupDelay: time.Millisecond})

	m.Start(context.Background())

	eventually(t, func() bool { return c.checks.Load() == 1 }, "startup check")
	assert.Equal(t, HealthValid, m.State())
	assert.Empty(t, rl.states())
}

func TestHealthMonitor_OfflineIssueIsFlagged(t *testing.T) {
	c := &fakeChecker{checkErr: errors.New("dial tcp: connection refused")}
	m, _, rl := newTestMonitor(t, c, HealthConfig{})
	m.SetOnline(func() bool { return false })

	assert.Equal(t, HealthIssueDetected, m.CheckNow())
	r := rl.last()
	assert.True(t, r.Offline)
	assert.Error(t, r.Err)
}

func TestHealthMonitor_VisibilityBurstIsDebounced(t *testing.T) {
	c := &fakeChecker{authed: true}
	m, _, _ := newTestMonitor(t, c, HealthConfig{VisibilityDebounce: 30 * time.Millisecond})

	for i := 0; i < 5; i++ {
		m.NotifyVisible()
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, func() bool { return c.checks.Load() == 1 }, "one check after burst")
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, c.checks.Load())
}

func TestHealthMonitor_VisibilityRespectsThrottle(t *testing.T) {
	c := &fakeChecker{authed: true}
	m, _, _ := newTestMonitor(t, c, HealthConfig{
		VisibilityDebounce: 5 * time.Millisecond,
		CheckThrottle:      time.Hour,
	})

	m.CheckNow()
	m.NotifyVisible()
	time.Sleep(40 * time.Millisecond)
	assert.EqualValues(t, 1, c.checks.Load())

	now := time.Now()
	m.mu.Lock()
	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	m.mu.Unlock()

	m.NotifyVisible()
	eventually(t, func() bool { return c.checks.Load() == 2 }, "check after throttle window")
}

func TestHealthMonitor_ConcurrentRefreshIsCollapsed(t *testing.T) {
	c := &fakeChecker{release: make(chan struct{})}
	m, nav, rl := newTestMonitor(t, c, HealthConfig{})
	ctx := context.Background()

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- m.Refresh(ctx) }()
	}

	eventually(t, func() bool { return m.State() == HealthRefreshing }, "refreshing")
	time.Sleep(20 * time.Millisecond)
	close(c.release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	assert.EqualValues(t, 1, c.refreshes.Load())
	assert.Equal(t, HealthValid, m.State())
	assert.Equal(t, []HealthState{HealthRefreshing, HealthValid}, rl.states())
	assert.Zero(t, nav.reloadPrompts())
}

func TestHealthMonitor_CheckDuringRefreshKeepsRefreshState(t *testing.T) {
	c := &fakeChecker{checkRelease: make(chan struct{}), release: make(chan struct{})}
	m, _, rl := newTestMonitor(t, c, HealthConfig{})
	ctx := context.Background()

	checked := make(chan HealthState, 1)
	go func() { checked <- m.CheckNow() }()
	eventually(t, func() bool { return c.checks.Load() == 1 }, "check started")

	refreshed := make(chan error, 1)
	go func() { refreshed <- m.Refresh(ctx) }()
	eventually(t, func() bool { return m.State() == HealthRefreshing }, "refreshing")

	// The unauthenticated check result arrives mid-refresh and is dropped.
	close(c.checkRelease)
	assert.Equal(t, HealthRefreshing, <-checked)

	m.NotifyVisible()
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, c.checks.Load(), "no check while refreshing")
	assert.Equal(t, HealthRefreshing, m.State())

	close(c.release)
	require.NoError(t, <-refreshed)
	assert.Equal(t, HealthValid, m.State())
	assert.Equal(t, []HealthState{HealthRefreshing, HealthValid}, rl.states())
}

func TestHealthMonitor_RefreshFailurePromptsReload(t *testing.T) {
	boom := errors.New("refresh failed")
	c := &fakeChecker{refreshErr: boom}
	m, nav, rl := newTestMonitor(t, c, HealthConfig{})

	err := m.Refresh(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Equal(t, HealthIssueDetected, m.State())
	assert.Equal(t, []HealthState{HealthRefreshing, HealthIssueDetected}, rl.states())
	assert.ErrorIs(t, rl.last().Err, boom)
	assert.Equal(t, 1, nav.reloadPrompts())
}

func TestHealthMonitor_StopCancelsTimers(t *testing.T) {
	c := &fakeChecker{}
	m, _, rl := newTestMonitor(t, c, HealthConfig{
		StartupDelay:       20 * time.Millisecond,
		VisibilityDebounce: 20 * time.Millisecond,
	})

	m.Start(context.Background())
	m.NotifyVisible()
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, c.checks.Load())
	assert.Empty(t, rl.states())
	assert.ErrorIs(t, m.Refresh(context.Background()), ErrMonitorStopped)
}
