package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/ratelimit"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLoginPath = "/login"

type authFixture struct {
	svc      *AuthService
	repos    *client.Repositories
	provider *client.GoTrueProvider
	gate     *ratelimit.Gate
	nav      *fakeNav
	endpoint *fakeEndpoint
	profiles *fakeProfiles
	waits    []time.Duration
}

func newAuthFixture(t *testing.T, mux *http.ServeMux, mutate ...func(*AuthConfig)) *authFixture {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	repos := newTestRepos(t)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	provider := client.NewGoTrueProvider(client.GoTrueConfig{
		URL:           srv.URL,
		AnonKey:       "anon-key",
		HTTPClient:    srv.Client(),
		ClientID:      "client-123",
		RefreshMargin: 10 * time.Second,
	}, repos.Metadata, bus, logging.Discard())

	f := &authFixture{
		repos:    repos,
		provider: provider,
		gate:     ratelimit.NewGate(repos.Metadata, logging.Discard()),
		nav:      &fakeNav{},
		endpoint: &fakeEndpoint{},
		profiles: newFakeProfiles(models.Profile{ID: "user-1", Email: "ada@example.com", FullName: "Ada Lovelace"}),
	}

	policy := retry.DefaultPolicy()
	policy.BaseDelay = 50 * time.Millisecond
	policy.JitterMax = 0
	policy.OnRetry = func(_ int, wait time.Duration, _ error) { f.waits = append(f.waits, wait) }

	cfg := AuthConfig{
		SessionWaitTimeout:  time.Second,
		SessionPollInterval: 5 * time.Millisecond,
		LoginPath:           testLoginPath,
		SignInPolicy:        policy,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	guard := NewGuardedCaller(f.gate, retry.New(logging.Discard()), common.DefaultGateKey, 30*time.Second, logging.Discard())
	cleaner := NewArtifactCleaner(repos.DB, logging.Discard())
	f.svc = NewAuthService(provider, f.endpoint, f.profiles, guard, cleaner, f.nav, cfg, logging.Discard())

	require.NoError(t, f.svc.Init(context.Background()))
	t.Cleanup(f.svc.Close)
	return f
}

func (f *authFixture) cooldownStored(t *testing.T) bool {
	t.Helper()
	v, err := f.repos.Metadata.Get(context.Background(), ratelimit.StorageKey(common.DefaultGateKey))
	require.NoError(t, err)
	return v != nil
}

func tokenHandler(calls *atomic.Int32, respond func(n int32, w http.ResponseWriter)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(calls.Add(1), w)
	}
}

func okToken(_ int32, w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, sessionJSON("access-1"))
}

func creds(pw string) models.Credentials {
	return models.Credentials{Email: " ada@example.com ", Password: []byte(pw)}
}

func TestAuthService_SignIn(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", tokenHandler(&calls, okToken))
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	c := creds("s3cret")
	require.NoError(t, f.svc.SignIn(ctx, c))

	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, c.Password)
	assert.EqualValues(t, 1, calls.Load())

	u := f.svc.User()
	require.NotNil(t, u)
	assert.Equal(t, "user-1", u.ID)
	p := f.svc.Profile()
	require.NotNil(t, p)
	assert.Equal(t, "Ada Lovelace", p.FullName)

	v, err := f.repos.Metadata.Get(ctx, common.SessionCacheKey)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestAuthService_SignIn_RequiresCredentials(t *testing.T) {
	f := newAuthFixture(t, http.NewServeMux())

	require.Error(t, f.svc.SignIn(context.Background(), models.Credentials{Email: " ", Password: []byte("x")}))
	require.Error(t, f.svc.SignIn(context.Background(), models.Credentials{Email: "a@b.c"}))
}

func TestAuthService_SignIn_WrongPasswordIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", tokenHandler(&calls, func(_ int32, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	}))
	f := newAuthFixture(t, mux)

	err := f.svc.SignIn(context.Background(), creds("wrong"))

	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "Invalid login credentials")
	assert.Equal(t, "Incorrect email or password", autherr.UserMessage(err))
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, f.waits)
	assert.False(t, f.cooldownStored(t))
	assert.Nil(t, f.svc.User())
}

func TestAuthService_SignIn_UnconfirmedEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "email_not_confirmed", "msg": "Email not confirmed"})
	})
	f := newAuthFixture(t, mux)

	err := f.svc.SignIn(context.Background(), creds("pw"))
	require.ErrorIs(t, err, autherr.ErrUnconfirmedEmail)
	assert.Contains(t, autherr.UserMessage(err), "confirm your email")
}

func TestAuthService_SignIn_TransientRateLimitRecovers(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", tokenHandler(&calls, func(n int32, w http.ResponseWriter) {
		if n <= 2 {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"msg": "Request rate limit reached"})
			return
		}
		okToken(n, w)
	}))
	f := newAuthFixture(t, mux)

	start := time.Now()
	require.NoError(t, f.svc.SignIn(context.Background(), creds("pw")))

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, f.waits)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.False(t, f.cooldownStored(t))
	require.NotNil(t, f.svc.User())
}

func TestAuthService_SignIn_PersistentRateLimitStartsCooldown(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", tokenHandler(&calls, func(_ int32, w http.ResponseWriter) {
		w.Header().Set("Retry-After", "12")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"msg": "Request rate limit reached"})
	}))
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	err := f.svc.SignIn(ctx, creds("pw"))
	require.ErrorIs(t, err, autherr.ErrRateLimited)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, "Too many attempts. Please wait 12 seconds and try again.", autherr.UserMessage(err))

	st, err := f.gate.Check(ctx, common.DefaultGateKey)
	require.NoError(t, err)
	require.True(t, st.Blocked)

	err = f.svc.SignIn(ctx, creds("pw"))
	require.ErrorIs(t, err, autherr.ErrCooldown)
	assert.Contains(t, autherr.UserMessage(err), "before trying again")
	assert.EqualValues(t, 3, calls.Load())
}

func TestAuthService_SignIn_PreDelayHonoursCancel(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", tokenHandler(&calls, okToken))
	f := newAuthFixture(t, mux, func(c *AuthConfig) { c.PreDelay = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.svc.SignIn(ctx, creds("pw"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls.Load())
}

func TestAuthService_SignIn_NoSessionTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "database unavailable"})
			return
		}
		s := sessionJSON("access-1")
		s["expires_in"] = 1
		writeJSON(w, http.StatusOK, s)
	})
	f := newAuthFixture(t, mux, func(c *AuthConfig) { c.SessionWaitTimeout = 50 * time.Millisecond })

	err := f.svc.SignIn(context.Background(), creds("pw"))
	require.ErrorIs(t, err, autherr.ErrAuthenticationFailed)
	assert.Equal(t, "Authentication failed. Please try again.", autherr.UserMessage(err))
}

func signedInFixture(t *testing.T, mux *http.ServeMux) *authFixture {
	t.Helper()
	mux.HandleFunc("POST /auth/v1/token", serveSession)
	f := newAuthFixture(t, mux)
	require.NoError(t, f.svc.SignIn(context.Background(), creds("pw")))
	return f
}

func serveSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionJSON("access-1"))
}

func TestAuthService_SignOutKeepsCooldownAndDropsArtifacts(t *testing.T) {
	var logouts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		logouts.Add(1)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	f := signedInFixture(t, mux)
	ctx := context.Background()

	require.NoError(t, f.gate.Record(ctx, common.DefaultGateKey, time.Minute))
	require.NoError(t, f.repos.Metadata.Set(ctx, "session:draft", []byte("x")))
	require.NoError(t, f.repos.Metadata.Set(ctx, "theme", []byte("dark")))
	for _, c := range []models.Cookie{
		{Name: "sb-access-token", Value: "a", Domain: "app.example.com", Path: "/"},
		{Name: "sb-server-session", Value: "s", Domain: "app.example.com", Path: "/", HTTPOnly: true},
		{Name: "theme", Value: "dark", Domain: "app.example.com", Path: "/"},
	} {
		require.NoError(t, f.repos.Cookies.Save(ctx, c))
	}

	require.NoError(t, f.svc.SignOut(ctx))

	assert.EqualValues(t, 1, logouts.Load())
	assert.Equal(t, []string{testLoginPath}, f.nav.navigated())
	assert.Nil(t, f.svc.User())
	assert.Nil(t, f.svc.Profile())

	keys, err := f.repos.Metadata.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, ratelimit.StorageKey(common.DefaultGateKey))
	assert.Contains(t, keys, "theme")
	assert.NotContains(t, keys, common.SessionCacheKey)
	assert.NotContains(t, keys, "session:draft")

	cs, err := f.repos.Cookies.List(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 3)
	for _, c := range cs {
		// HttpOnly cookies stay for the server session delete.
		assert.Equal(t, c.Name == "sb-access-token", c.ExpiredAt(time.Now()), c.Name)
	}

	s, err := f.provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAuthService_SignOutProviderFailureIsPartial(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "boom"})
	})
	f := signedInFixture(t, mux)
	ctx := context.Background()

	err := f.svc.SignOut(ctx)

	require.ErrorIs(t, err, autherr.ErrSignOutPartialFailure)
	assert.Equal(t, []string{testLoginPath}, f.nav.navigated())
	assert.Nil(t, f.svc.User())

	v, err := f.repos.Metadata.Get(ctx, common.SessionCacheKey)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAuthService_InitRestoresAndFollowsEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", serveSession)
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	_, err := f.provider.SignIn(ctx, "ada@example.com", []byte("pw"))
	require.NoError(t, err)
	eventually(t, func() bool { return f.svc.Profile() != nil }, "profile loaded from SIGNED_IN")
	assert.Equal(t, "user-1", f.svc.User().ID)

	require.NoError(t, f.provider.SignOut(ctx))
	eventually(t, func() bool { return f.svc.User() == nil }, "state cleared on SIGNED_OUT")
	assert.Nil(t, f.svc.Profile())

	_, err = f.provider.SignIn(ctx, "ada@example.com", []byte("pw"))
	require.NoError(t, err)

	other := newFakeProfiles()
	svc := NewAuthService(f.provider, f.endpoint, other, nil, nil, f.nav, AuthConfig{}, logging.Discard())
	require.NoError(t, svc.Init(ctx))
	defer svc.Close()
	require.NotNil(t, svc.User())
	assert.Equal(t, "user-1", svc.User().ID)
	assert.Nil(t, svc.Profile())
}

func TestAuthService_SignUpIsNotRetried(t *testing.T) {
	f := newAuthFixture(t, http.NewServeMux())
	ctx := context.Background()

	res, err := f.svc.SignUp(ctx, models.SignUpFields{Email: "new@example.com", Password: "pw", FullName: "New"})
	require.NoError(t, err)
	assert.True(t, res.VerificationPending)

	f.endpoint.signUp = func(models.SignUpFields) (*models.SignUpResult, error) {
		return nil, rateLimited(0)
	}
	_, err = f.svc.SignUp(ctx, models.SignUpFields{Email: "new@example.com", Password: "pw"})
	require.ErrorIs(t, err, autherr.ErrRateLimited)
	assert.Equal(t, 2, f.endpoint.signUps)
	assert.False(t, f.cooldownStored(t))

	_, err = f.svc.SignUp(ctx, models.SignUpFields{Email: "new@example.com"})
	require.Error(t, err)
	assert.Equal(t, 2, f.endpoint.signUps)
}

func TestAuthService_OAuthAndCallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "email": "ada@example.com"})
	})
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	u, err := f.svc.SignInWithOAuth(ctx, "github", "http://localhost:3000/callback")
	require.NoError(t, err)
	assert.Contains(t, u, "/auth/v1/authorize?")
	assert.Equal(t, []string{u}, f.nav.urls)

	f.nav.openErr = errors.New("no browser")
	_, err = f.svc.SignInWithOAuth(ctx, "google", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteSignIn(ctx, "http://localhost:3000/callback#access_token=acc&refresh_token=ref&expires_in=3600"))
	require.NotNil(t, f.svc.User())
	assert.Equal(t, "Ada Lovelace", f.svc.Profile().FullName)
}

func TestAuthService_MagicLinkAndReset(t *testing.T) {
	var otp, rec atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		otp.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /auth/v1/recover", func(w http.ResponseWriter, r *http.Request) {
		rec.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"msg": "For security purposes, you can only request this after 42 seconds."})
	})
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	require.NoError(t, f.svc.SignInWithMagicLink(ctx, "ada@example.com", ""))

	err := f.svc.ResetPassword(ctx, "ada@example.com", "")
	require.ErrorIs(t, err, autherr.ErrRateLimited)
	assert.Equal(t, 42*time.Second, autherr.RetryAfterOf(err))

	assert.EqualValues(t, 1, otp.Load())
	assert.EqualValues(t, 1, rec.Load())
}

func TestAuthService_UpdateProfile(t *testing.T) {
	f := newAuthFixture(t, http.NewServeMux())
	ctx := context.Background()

	name := "Ada King"
	_, err := f.svc.UpdateProfile(ctx, models.ProfileUpdate{FullName: &name})
	require.ErrorIs(t, err, client.ErrNoSession)

	f2 := signedInFixture(t, http.NewServeMux())
	p, err := f2.svc.UpdateProfile(ctx, models.ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", p.FullName)
	assert.Equal(t, "Ada King", f2.svc.Profile().FullName)

	same, err := f2.svc.UpdateProfile(ctx, models.ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", same.FullName)
}

func TestAuthService_IsAuthenticatedAndRefresh(t *testing.T) {
	var userStatus atomic.Int32
	userStatus.Store(http.StatusOK)
	var refreshes atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, sessionJSON("access-2"))
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON("access-1"))
	})
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if s := int(userStatus.Load()); s != http.StatusOK {
			writeJSON(w, s, map[string]any{"error_code": "session_not_found", "msg": "Session from session_id claim in JWT does not exist"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "email": "ada@example.com"})
	})
	f := newAuthFixture(t, mux)
	ctx := context.Background()

	ok, err := f.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.SignIn(ctx, creds("pw")))
	ok, err = f.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.RefreshAuth(ctx))
	assert.EqualValues(t, 1, refreshes.Load())
	s, err := f.provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", s.AccessToken)

	userStatus.Store(http.StatusUnauthorized)
	ok, err = f.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
