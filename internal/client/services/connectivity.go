package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Pinger probes a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityWatcher tracks whether the identity provider is reachable.
// Until the first probe the mode is unknown and treated as online.
type ConnectivityWatcher struct {
	pinger  Pinger
	timeout time.Duration
	log     logging.Logger

	mu       sync.Mutex
	mode     Mode
	onChange func(Mode)
}

func NewConnectivityWatcher(p Pinger, timeout time.Duration, log logging.Logger) *ConnectivityWatcher {
	return &ConnectivityWatcher{pinger: p, timeout: timeout, log: log}
}

func (w *ConnectivityWatcher) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

func (w *ConnectivityWatcher) Online() bool {
	return w.Mode() != ModeOffline
}

// OnChange registers a callback for mode switches.
func (w *ConnectivityWatcher) OnChange(fn func(Mode)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Probe pings once and updates the mode.
func (w *ConnectivityWatcher) Probe(ctx context.Context) Mode {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	next := ModeOnline
	if err := w.pinger.Ping(ctx); err != nil {
		w.log.Debug(ctx, "provider ping failed", "error", err)
		next = ModeOffline
	}

	w.mu.Lock()
	changed := w.mode != next
	w.mode = next
	fn := w.onChange
	w.mu.Unlock()

	if changed {
		w.log.Info(ctx, "connectivity changed", "mode", next)
		if fn != nil {
			fn(next)
		}
	}
	return next
}

// Run probes immediately and then every interval until ctx is done.
func (w *ConnectivityWatcher) Run(ctx context.Context, interval time.Duration) {
	w.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
