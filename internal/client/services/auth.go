package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// AuthConfig holds the AuthService settings.
type AuthConfig struct {
	// PreDelay is waited before every sign-in attempt; zero disables it.
	PreDelay time.Duration
	// SessionWaitTimeout bounds the wait for the session after sign-in.
	SessionWaitTimeout time.Duration
	// SessionPollInterval is how often the session is looked up while waiting.
	SessionPollInterval time.Duration
	// LoginPath is where SignOut navigates.
	LoginPath string
	// SignInPolicy is the retry policy of sign-in and refresh.
	SignInPolicy retry.Policy
	// ProfileTimeout bounds background profile loads.
	ProfileTimeout time.Duration
}

// LocalCleaner removes the auth artifacts the client owns, leaving HttpOnly
// cookies in place.
type LocalCleaner interface {
	ClearLocal(ctx context.Context) (CleanupReport, error)
}

// AuthService keeps the current user and profile and exposes the auth
// operations of the client.
type AuthService struct {
	provider client.IdentityProvider
	endpoint client.SessionEndpoint
	profiles client.ProfileStore
	guard    *GuardedCaller
	cleaner  LocalCleaner
	nav      Navigator
	log      logging.Logger
	cfg      AuthConfig

	mu      sync.RWMutex
	user    *models.User
	profile *models.Profile
	sub     *events.Subscription
	done    chan struct{}
}

func NewAuthService(
	provider client.IdentityProvider,
	endpoint client.SessionEndpoint,
	profiles client.ProfileStore,
	guard *GuardedCaller,
	cleaner LocalCleaner,
	nav Navigator,
	cfg AuthConfig,
	log logging.Logger,
) *AuthService {
	if cfg.SessionPollInterval <= 0 {
		cfg.SessionPollInterval = 50 * time.Millisecond
	}
	return &AuthService{
		provider: provider,
		endpoint: endpoint,
		profiles: profiles,
		guard:    guard,
		cleaner:  cleaner,
		nav:      nav,
		cfg:      cfg,
		log:      log,
	}
}

// Init loads the current session and profile and starts following auth
// events. An invalid stored session is not an error: the user is simply
// signed out.
func (a *AuthService) Init(ctx context.Context) error {
	s, err := a.provider.GetSession(ctx)
	switch {
	case errors.Is(err, autherr.ErrSessionInvalid):
		a.log.Info(ctx, "stored session is no longer valid", "error", err)
	case err != nil:
		a.log.Warn(ctx, "failed to load session", "error", err)
	case s != nil:
		a.adopt(ctx, s)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub == nil {
		a.sub = a.provider.Subscribe()
		a.done = make(chan struct{})
		go a.follow(context.WithoutCancel(ctx), a.sub, a.done)
	}
	return nil
}

// Close stops following auth events.
func (a *AuthService) Close() {
	a.mu.Lock()
	sub, done := a.sub, a.done
	a.sub, a.done = nil, nil
	a.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}

func (a *AuthService) follow(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.C() {
		switch ev.Kind {
		case models.EventSignedIn, models.EventTokenRefreshed:
			if ev.Session != nil {
				a.adopt(ctx, ev.Session)
			}
		case models.EventSignedOut:
			a.clearState()
		}
	}
}

// adopt makes s.User current and loads the profile when the user changed
// or none is loaded.
func (a *AuthService) adopt(ctx context.Context, s *models.Session) {
	u := s.User

	a.mu.Lock()
	needProfile := a.profile == nil || a.profile.ID != u.ID
	a.user = &u
	a.mu.Unlock()

	if needProfile && u.ID != "" {
		a.loadProfile(ctx, s)
	}
}

func (a *AuthService) loadProfile(ctx context.Context, s *models.Session) {
	if a.cfg.ProfileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ProfileTimeout)
		defer cancel()
	}

	p, err := a.profiles.GetProfile(ctx, s.AccessToken, s.UserID())
	if err != nil {
		a.log.Warn(ctx, "failed to load profile", "user_id", s.UserID(), "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil || a.user.ID != s.UserID() {
		return
	}
	a.profile = p
}

func (a *AuthService) clearState() {
	a.mu.Lock()
	a.user = nil
	a.profile = nil
	a.mu.Unlock()
}

func (a *AuthService) User() *models.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

func (a *AuthService) Profile() *models.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.profile == nil {
		return nil
	}
	p := *a.profile
	return &p
}

// SignIn authenticates with email and password. The password is wiped
// when SignIn returns.
func (a *AuthService) SignIn(ctx context.Context, creds models.Credentials) error {
	defer common.WipeByteArray(creds.Password)

	email := strings.TrimSpace(creds.Email)
	if email == "" || len(creds.Password) == 0 {
		return errors.New("email and password are required")
	}

	if err := sleepCtx(ctx, a.cfg.PreDelay); err != nil {
		return err
	}

	err := a.guard.Do(ctx, "auth.sign_in", a.cfg.SignInPolicy, func(ctx context.Context) error {
		_, err := a.provider.SignIn(ctx, email, creds.Password)
		return err
	})
	if err != nil {
		a.log.Info(ctx, "sign-in failed", "email", email, "kind", autherr.KindOf(err), "error", err)
		return err
	}

	s, err := a.awaitSession(ctx)
	if err != nil {
		return err
	}
	a.adopt(ctx, s)
	a.log.Info(ctx, "signed in", "user_id", s.UserID())
	return nil
}

// awaitSession polls the provider until a session exists or the wait
// timeout passes.
func (a *AuthService) awaitSession(ctx context.Context) (*models.Session, error) {
	wait := a.cfg.SessionWaitTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(a.cfg.SessionPollInterval)
	defer poll.Stop()

	for {
		s, err := a.provider.GetSession(ctx)
		if err == nil && s != nil {
			return s, nil
		}
		if err != nil {
			a.log.Debug(ctx, "session not ready after sign-in", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, autherr.New(autherr.KindAuthenticationFailed, "no session after sign-in", err)
		case <-poll.C:
		}
	}
}

// SignUp registers through the backend. It is never retried.
func (a *AuthService) SignUp(ctx context.Context, fields models.SignUpFields) (*models.SignUpResult, error) {
	fields.Email = strings.TrimSpace(fields.Email)
	if fields.Email == "" || fields.Password == "" {
		return nil, errors.New("email and password are required")
	}
	res, err := a.endpoint.SignUp(ctx, fields)
	if err != nil {
		return nil, err
	}
	a.log.Info(ctx, "account registered", "user_id", res.UserID, "verification_pending", res.VerificationPending)
	return res, nil
}

// SignInWithOAuth returns the authorization URL for provider and hands it
// to the navigator.
func (a *AuthService) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	u, err := a.provider.SignInWithOAuth(ctx, provider, redirectTo)
	if err != nil {
		return "", err
	}
	if err := a.nav.OpenURL(u); err != nil {
		a.log.Warn(ctx, "failed to open authorization url", "error", err)
	}
	return u, nil
}

// SignInWithMagicLink emails a sign-in link.
func (a *AuthService) SignInWithMagicLink(ctx context.Context, email, redirectTo string) error {
	return a.provider.SignInWithOtp(ctx, strings.TrimSpace(email), redirectTo)
}

// CompleteSignIn finishes an OAuth or magic-link flow from its callback URL.
func (a *AuthService) CompleteSignIn(ctx context.Context, callbackURL string) error {
	s, err := a.provider.SetSessionFromURL(ctx, callbackURL)
	if err != nil {
		return err
	}
	a.adopt(ctx, s)
	return nil
}

func (a *AuthService) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return a.provider.ResetPasswordForEmail(ctx, strings.TrimSpace(email), redirectTo)
}

// UpdateProfile changes the profile of the signed-in user.
func (a *AuthService) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.Profile, error) {
	if upd.Empty() {
		return a.Profile(), nil
	}
	s, err := a.provider.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("update profile: %w", client.ErrNoSession)
	}

	p, err := a.profiles.UpdateProfile(ctx, s.AccessToken, s.UserID(), upd)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()

	cp := *p
	return &cp, nil
}

// SignOut drops local state, revokes the provider session and navigates to
// the login path whatever happened on the way. A provider failure comes
// back as a SignOutPartialFailure. HttpOnly session cookies are left to the
// synchronizer, which expires them after deleting the server session.
func (a *AuthService) SignOut(ctx context.Context) error {
	defer a.nav.Navigate(a.cfg.LoginPath)

	a.clearState()

	if _, err := a.cleaner.ClearLocal(ctx); err != nil {
		a.log.Error(ctx, "failed to clear local auth artifacts", "error", err)
	}

	if err := a.provider.SignOut(ctx); err != nil {
		a.log.Warn(ctx, "provider sign-out failed", "error", err)
		return autherr.New(autherr.KindSignOutPartialFailure, "provider session not revoked", err)
	}
	return nil
}

// IsAuthenticated reports whether a session exists and the provider still
// accepts it.
func (a *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	s, err := a.provider.GetSession(ctx)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionInvalid) {
			return false, nil
		}
		return false, err
	}
	if s == nil {
		return false, nil
	}

	u, err := a.provider.GetUser(ctx)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionInvalid) {
			return false, nil
		}
		return false, err
	}

	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
	return true, nil
}

// RefreshAuth refreshes the session behind the cooldown gate and retrier.
func (a *AuthService) RefreshAuth(ctx context.Context) error {
	return a.guard.Do(ctx, "auth.refresh", a.cfg.SignInPolicy, func(ctx context.Context) error {
		_, err := a.provider.RefreshSession(ctx)
		return err
	})
}

// Ping checks that the provider is reachable.
func (a *AuthService) Ping(ctx context.Context) error {
	return a.provider.Ping(ctx)
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
