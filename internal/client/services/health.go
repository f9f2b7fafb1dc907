package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"golang.org/x/sync/singleflight"
)

// HealthState is the monitor's view of the session.
type HealthState int

const (
	HealthValid HealthState = iota
	HealthIssueDetected
	HealthRefreshing
)

func (s HealthState) String() string {
	switch s {
	case HealthIssueDetected:
		return "issue_detected"
	case HealthRefreshing:
		return "refreshing"
	default:
		return "valid"
	}
}

// Recovery actions offered with an issue report.
const (
	ActionRefresh = "refresh"
	ActionReload  = "reload"
)

// HealthReport is delivered to the listener on every state change.
type HealthReport struct {
	State HealthState
	// Err is the failure behind an issue, nil when the session simply is gone.
	Err error
	// Offline is set when the issue was seen while the provider was unreachable.
	Offline bool
	// Actions are the recovery options to offer; empty when Valid.
	Actions []string
}

// SessionChecker is what the monitor validates and refreshes.
type SessionChecker interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	RefreshAuth(ctx context.Context) error
}

// HealthConfig holds the monitor timings.
type HealthConfig struct {
	StartupDelay       time.Duration
	VisibilityDebounce time.Duration
	CheckThrottle      time.Duration
	// CheckTimeout bounds a single validity check.
	CheckTimeout time.Duration
}

var ErrMonitorStopped = errors.New("health monitor stopped")

// SessionHealthMonitor runs the state machine
// Valid -> IssueDetected -> Refreshing -> (Valid | IssueDetected).
type SessionHealthMonitor struct {
	checker SessionChecker
	nav     Navigator
	log     logging.Logger
	cfg     HealthConfig
	now     func() time.Time
	// online reports provider reachability; nil means always online.
	online func() bool

	mu            sync.Mutex
	ctx           context.Context
	state         HealthState
	checking      bool
	refreshing    bool
	refreshGen    uint64
	lastCheck     time.Time
	startupTimer  *time.Timer
	debounceTimer *time.Timer
	started       bool
	stopped       bool
	listener      func(HealthReport)

	refreshGroup singleflight.Group
}

func NewSessionHealthMonitor(checker SessionChecker, nav Navigator, cfg HealthConfig, log logging.Logger) *SessionHealthMonitor {
	return &SessionHealthMonitor{
		checker: checker,
		nav:     nav,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// OnChange registers the listener for state changes.
func (m *SessionHealthMonitor) OnChange(fn func(HealthReport)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// SetOnline installs the reachability probe consulted when a check fails.
func (m *SessionHealthMonitor) SetOnline(fn func() bool) {
	m.mu.Lock()
	m.online = fn
	m.mu.Unlock()
}

// State returns the current state.
func (m *SessionHealthMonitor) State() HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start schedules the startup check.
func (m *SessionHealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.ctx = context.WithoutCancel(ctx)
	m.startupTimer = time.AfterFunc(m.cfg.StartupDelay, func() {
		m.runCheck("startup")
	})
}

// NotifyVisible records user activity. Bursts are debounced; the check
// after the burst runs only if CheckThrottle has passed since the last
// check and nothing is in flight.
func (m *SessionHealthMonitor) NotifyVisible() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(m.cfg.VisibilityDebounce, m.onVisible)
}

func (m *SessionHealthMonitor) onVisible() {
	m.mu.Lock()
	skip := m.stopped || m.checking || m.refreshing ||
		(!m.lastCheck.IsZero() && m.now().Sub(m.lastCheck) < m.cfg.CheckThrottle)
	ctx := m.ctx
	m.mu.Unlock()

	if skip {
		m.log.Debug(ctx, "visibility check skipped")
		return
	}
	m.runCheck("visibility")
}

// CheckNow runs a validity check immediately and returns the resulting state.
func (m *SessionHealthMonitor) CheckNow() HealthState {
	m.runCheck("manual")
	return m.State()
}

func (m *SessionHealthMonitor) runCheck(reason string) {
	m.mu.Lock()
	if m.stopped || m.checking || m.refreshing {
		m.mu.Unlock()
		return
	}
	m.checking = true
	m.lastCheck = m.now()
	gen := m.refreshGen
	ctx := m.ctx
	m.mu.Unlock()

	if m.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.CheckTimeout)
		defer cancel()
	}

	ok, err := m.checker.IsAuthenticated(ctx)

	m.mu.Lock()
	m.checking = false
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// A refresh started meanwhile owns the state.
	if m.refreshing || m.refreshGen != gen {
		m.mu.Unlock()
		m.log.Debug(ctx, "session check superseded by refresh", "reason", reason)
		return
	}
	var report *HealthReport
	if err == nil && ok {
		report = m.setStateLocked(HealthValid, nil)
	} else {
		report = m.setStateLocked(HealthIssueDetected, err)
	}
	listener := m.listener
	m.mu.Unlock()

	m.log.Debug(ctx, "session check finished", "reason", reason, "authenticated", ok, "error", err)
	if report != nil && listener != nil {
		listener(*report)
	}
}

// Refresh attempts to recover the session. Concurrent callers share a
// single attempt and all get its result. On failure the user is asked to
// reload.
func (m *SessionHealthMonitor) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *SessionHealthMonitor) refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrMonitorStopped
	}
	m.refreshing = true
	m.refreshGen++
	report := m.setStateLocked(HealthRefreshing, nil)
	listener := m.listener
	m.mu.Unlock()

	if report != nil && listener != nil {
		listener(*report)
	}

	err := m.checker.RefreshAuth(ctx)

	m.mu.Lock()
	m.refreshing = false
	if m.stopped {
		m.mu.Unlock()
		return err
	}
	m.lastCheck = m.now()
	if err == nil {
		report = m.setStateLocked(HealthValid, nil)
	} else {
		report = m.setStateLocked(HealthIssueDetected, err)
	}
	listener = m.listener
	m.mu.Unlock()

	if report != nil && listener != nil {
		listener(*report)
	}
	if err != nil {
		m.log.Warn(ctx, "session refresh failed", "error", err)
		m.nav.PromptReload("Your session could not be refreshed.")
		return err
	}
	m.log.Info(ctx, "session refreshed")
	return nil
}

// Stop cancels pending timers. Checks finishing later change nothing.
func (m *SessionHealthMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.startupTimer != nil {
		m.startupTimer.Stop()
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
}

// setStateLocked moves to next and returns the report to deliver, nil when
// nothing changed.
func (m *SessionHealthMonitor) setStateLocked(next HealthState, err error) *HealthReport {
	if next == m.state && err == nil && next != HealthIssueDetected {
		return nil
	}
	m.state = next

	r := &HealthReport{State: next, Err: err}
	if next == HealthIssueDetected {
		r.Actions = []string{ActionRefresh, ActionReload}
		if m.online != nil && !m.online() {
			r.Offline = true
		}
	}
	return r
}
