package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/ratelimit"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/filex"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// pingTimeout bounds one connectivity probe.
const pingTimeout = 3 * time.Second

// runtime owns every component of a running client.
type runtime struct {
	cfg      *config.Config
	log      logging.Logger
	repos    *client.Repositories
	bus      *events.Bus
	provider *client.GoTrueProvider
	auth     *services.AuthService
	sync     *services.SessionSynchronizer
	monitor  *services.SessionHealthMonitor
	watcher  *services.ConnectivityWatcher
	terminal *Terminal
	app      *App
}

func newRuntime(ctx context.Context, cfg *config.Config, out io.Writer, log logging.Logger) (*runtime, error) {
	if _, err := filex.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	repos, err := client.InitDatabase(ctx, cfg.DBPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	clientID, err := client.LoadOrCreateClientID(ctx, repos.Metadata)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	hc := &http.Client{
		Timeout: cfg.RequestTimeout,
		Jar:     cookies.NewJar(repos.Cookies, log.With("component", "cookies")),
	}
	bus := events.NewBus()

	provider := client.NewGoTrueProvider(client.GoTrueConfig{
		URL:           cfg.ProviderURL,
		AnonKey:       cfg.AnonKey,
		HTTPClient:    hc,
		ClientID:      clientID,
		RefreshMargin: cfg.RefreshMargin,
	}, repos.Metadata, bus, log.With("component", "gotrue"))
	if err := provider.Restore(ctx); err != nil {
		bus.Close()
		_ = repos.Close()
		return nil, err
	}

	endpoint := client.NewAppClient(cfg.AppURL, hc, clientID)
	profiles := client.NewPostgRESTProfiles(cfg.ProviderURL, cfg.AnonKey, hc, clientID)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.RetryMaxRetries
	policy.BaseDelay = cfg.RetryBaseDelay
	policy.MaxDelay = cfg.RetryMaxDelay
	policy.JitterMax = cfg.RetryJitter
	gate := ratelimit.NewGate(repos.Metadata, log.With("component", "ratelimit"))
	guard := services.NewGuardedCaller(gate, retry.New(log), common.DefaultGateKey, cfg.DefaultCooldown, log)
	cleaner := services.NewArtifactCleaner(repos.DB, log)
	terminal := NewTerminal(out)

	auth := services.NewAuthService(provider, endpoint, profiles, guard, cleaner, terminal, services.AuthConfig{
		PreDelay:           cfg.SignInPreDelay,
		SessionWaitTimeout: cfg.SessionWaitTimeout,
		LoginPath:          cfg.LoginPath,
		SignInPolicy:       policy,
		ProfileTimeout:     cfg.RequestTimeout,
	}, log.With("component", "auth"))

	sync := services.NewSessionSynchronizer(provider, endpoint, guard, policy, cleaner, log.With("component", "sync"))
	watcher := services.NewConnectivityWatcher(provider, pingTimeout, log)

	monitor := services.NewSessionHealthMonitor(auth, terminal, services.HealthConfig{
		StartupDelay:       cfg.StartupDelay,
		VisibilityDebounce: cfg.VisibilityDebounce,
		CheckThrottle:      cfg.CheckThrottle,
		CheckTimeout:       cfg.CheckTimeout,
	}, log.With("component", "health"))
	monitor.SetOnline(watcher.Online)

	app := NewApp(auth, monitor, watcher.Mode, cfg.OAuthRedirectURL, log)
	app.out = out
	monitor.OnChange(app.OnHealth)
	watcher.OnChange(app.OnMode)

	return &runtime{
		cfg:      cfg,
		log:      log,
		repos:    repos,
		bus:      bus,
		provider: provider,
		auth:     auth,
		sync:     sync,
		monitor:  monitor,
		watcher:  watcher,
		terminal: terminal,
		app:      app,
	}, nil
}

// start brings up the background components. The synchronizer subscribes
// before the auth service so that no event is missed.
func (r *runtime) start(ctx context.Context) error {
	r.sync.Start(ctx)
	if err := r.auth.Init(ctx); err != nil {
		return err
	}
	go r.watcher.Run(ctx, r.cfg.OnlineCheckInterval)
	r.monitor.Start(ctx)
	return nil
}

func (r *runtime) close() error {
	r.monitor.Stop()
	r.sync.Stop()
	r.auth.Close()
	r.bus.Close()
	return r.repos.Close()
}

// Run wires the client from cfg, runs the REPL until the user exits and
// tears everything down.
func Run(ctx context.Context, cfg *config.Config, log logging.Logger) (err error) {
	rt, err := newRuntime(ctx, cfg, os.Stdout, log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.close())
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := rt.start(ctx); err != nil {
		return err
	}
	rt.app.Run(ctx)
	return nil
}
