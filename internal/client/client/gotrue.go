package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
	"golang.org/x/sync/singleflight"
)

// GoTrueConfig configures GoTrueProvider.
type GoTrueConfig struct {
	// URL is the project URL; the auth API lives under /auth/v1.
	URL     string
	AnonKey string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	ClientID   string
	// RefreshMargin makes GetSession refresh a token this long before it
	// expires.
	RefreshMargin time.Duration
}

// GoTrueProvider is the IdentityProvider over the GoTrue REST API. The
// current session is cached in the key/value store under
// common.SessionCacheKey and restored by Restore.
type GoTrueProvider struct {
	baseURL string
	anonKey string
	margin  time.Duration
	t       *transport
	store   KeyValueStore
	bus     *events.Bus
	log     logging.Logger
	now     func() time.Time

	mu      sync.RWMutex
	session *models.Session

	refreshGroup singleflight.Group
}

var _ IdentityProvider = (*GoTrueProvider)(nil)

func NewGoTrueProvider(cfg GoTrueConfig, store KeyValueStore, bus *events.Bus, log logging.Logger) *GoTrueProvider {
	return &GoTrueProvider{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		margin:  cfg.RefreshMargin,
		t:       newTransport(cfg.HTTPClient, cfg.ClientID),
		store:   store,
		bus:     bus,
		log:     log,
		now:     time.Now,
	}
}

// Restore loads the cached session, if any. No event is published.
func (p *GoTrueProvider) Restore(ctx context.Context) error {
	raw, err := p.store.Get(ctx, common.SessionCacheKey)
	if err != nil {
		return fmt.Errorf("failed to load cached session: %w", err)
	}
	if raw == nil {
		return nil
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil || s.AccessToken == "" {
		p.log.Warn(ctx, "dropping unreadable session cache", "error", err)
		return p.store.Delete(ctx, common.SessionCacheKey)
	}

	p.mu.Lock()
	p.session = &s
	p.mu.Unlock()
	return nil
}

func (p *GoTrueProvider) endpoint(path string, query url.Values) string {
	u := p.baseURL + "/auth/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (p *GoTrueProvider) headers(accessToken string) http.Header {
	h := http.Header{}
	h.Set("apikey", p.anonKey)
	if accessToken == "" {
		accessToken = p.anonKey
	}
	h.Set("Authorization", "Bearer "+accessToken)
	return h
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}

func (p *GoTrueProvider) SignIn(ctx context.Context, email string, password []byte) (*models.Session, error) {
	var s models.Session
	err := p.t.do(ctx, "gotrue.sign_in", netx.Request{
		Method: http.MethodPost,
		URL:    p.endpoint("/token", url.Values{"grant_type": {"password"}}),
		Header: p.headers(""),
		Body:   map[string]string{"email": email, "password": string(password)},
	}, &s)
	if err != nil {
		return nil, err
	}

	p.setSession(ctx, &s, models.EventSignedIn)
	return p.current(), nil
}

type signUpResponse struct {
	models.Session
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (p *GoTrueProvider) SignUp(ctx context.Context, fields models.SignUpFields, redirectTo string) (*models.SignUpResult, error) {
	body := map[string]any{
		"email":    fields.Email,
		"password": fields.Password,
		"data": map[string]string{
			"full_name": fields.FullName,
			"username":  fields.Username,
		},
	}

	var resp signUpResponse
	err := p.t.do(ctx, "gotrue.sign_up", netx.Request{
		Method: http.MethodPost,
		URL:    p.endpoint("/signup", redirectQuery(redirectTo)),
		Header: p.headers(""),
		Body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken != "" {
		p.setSession(ctx, &resp.Session, models.EventSignedIn)
		return &models.SignUpResult{UserID: resp.User.ID, Email: resp.User.Email}, nil
	}
	return &models.SignUpResult{UserID: resp.ID, Email: resp.Email, VerificationPending: true}, nil
}

// SignOut revokes the session at the provider and then, whatever the
// outcome, drops it locally and publishes SIGNED_OUT. A session the
// provider no longer knows is not an error.
func (p *GoTrueProvider) SignOut(ctx context.Context) error {
	var err error
	if s := p.current(); s != nil {
		err = p.t.do(ctx, "gotrue.sign_out", netx.Request{
			Method: http.MethodPost,
			URL:    p.endpoint("/logout", nil),
			Header: p.headers(s.AccessToken),
		}, nil)
		if errors.Is(err, autherr.ErrSessionInvalid) {
			err = nil
		}
		if err != nil {
			var ae *autherr.Error
			if errors.As(err, &ae) && (ae.Status == http.StatusNotFound || ae.Status == http.StatusForbidden) {
				err = nil
			}
		}
	}

	p.clearSession(ctx)
	return err
}

func (p *GoTrueProvider) GetSession(ctx context.Context) (*models.Session, error) {
	s := p.current()
	if s == nil {
		return nil, nil
	}
	if !s.Expired(p.now(), p.margin) {
		return s, nil
	}
	if s.RefreshToken == "" {
		return nil, autherr.New(autherr.KindSessionInvalid, "session expired", ErrNoSession)
	}
	return p.refreshShared(ctx, s.AccessToken)
}

// RefreshSession exchanges the refresh token for a new session. Concurrent
// callers share one request. A rejected refresh token ends the session.
func (p *GoTrueProvider) RefreshSession(ctx context.Context) (*models.Session, error) {
	return p.refreshShared(ctx, "")
}

// refreshShared refreshes through the singleflight group. With a stale
// token set, a session already replaced by another caller is returned as is.
func (p *GoTrueProvider) refreshShared(ctx context.Context, stale string) (*models.Session, error) {
	v, err, _ := p.refreshGroup.Do("refresh", func() (any, error) {
		if stale != "" {
			if cur := p.current(); cur != nil && cur.AccessToken != stale && !cur.Expired(p.now(), p.margin) {
				return cur, nil
			}
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

func (p *GoTrueProvider) refresh(ctx context.Context) (*models.Session, error) {
	cur := p.current()
	if cur == nil || cur.RefreshToken == "" {
		return nil, autherr.New(autherr.KindSessionInvalid, "no refresh token", ErrNoSession)
	}

	var s models.Session
	err := p.t.do(ctx, "gotrue.refresh", netx.Request{
		Method: http.MethodPost,
		URL:    p.endpoint("/token", url.Values{"grant_type": {"refresh_token"}}),
		Header: p.headers(""),
		Body:   map[string]string{"refresh_token": cur.RefreshToken},
	}, &s)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionInvalid) {
			p.log.Warn(ctx, "refresh token rejected, ending session", "error", err)
			p.clearSession(ctx)
		}
		return nil, err
	}

	p.setSession(ctx, &s, models.EventTokenRefreshed)
	return p.current(), nil
}

func (p *GoTrueProvider) GetUser(ctx context.Context) (*models.User, error) {
	s, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, autherr.New(autherr.KindSessionInvalid, "not signed in", ErrNoSession)
	}

	var u models.User
	err = p.t.do(ctx, "gotrue.get_user", netx.Request{
		Method: http.MethodGet,
		URL:    p.endpoint("/user", nil),
		Header: p.headers(s.AccessToken),
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *GoTrueProvider) Subscribe() *events.Subscription {
	return p.bus.Subscribe()
}

func (p *GoTrueProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return p.t.do(ctx, "gotrue.recover", netx.Request{
		Method: http.MethodPost,
		URL:    p.endpoint("/recover", redirectQuery(redirectTo)),
		Header: p.headers(""),
		Body:   map[string]string{"email": email},
	}, nil)
}

func (p *GoTrueProvider) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	if strings.TrimSpace(provider) == "" {
		return "", errors.New("oauth provider is required")
	}
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return p.endpoint("/authorize", q), nil
}

func (p *GoTrueProvider) SignInWithOtp(ctx context.Context, email, redirectTo string) error {
	return p.t.do(ctx, "gotrue.otp", netx.Request{
		Method: http.MethodPost,
		URL:    p.endpoint("/otp", redirectQuery(redirectTo)),
		Header: p.headers(""),
		Body:   map[string]any{"email": email, "create_user": true},
	}, nil)
}

// SetSessionFromURL reads the tokens a redirect flow (OAuth, magic link)
// appends to the callback URL fragment, fetches the user and establishes
// the session.
func (p *GoTrueProvider) SetSessionFromURL(ctx context.Context, callbackURL string) (*models.Session, error) {
	u, err := url.Parse(strings.TrimSpace(callbackURL))
	if err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	params, err := url.ParseQuery(u.Fragment)
	if err != nil || len(params) == 0 {
		params = u.Query()
	}

	if desc := params.Get("error_description"); desc != "" || params.Get("error") != "" {
		if desc == "" {
			desc = params.Get("error")
		}
		return nil, autherr.Classify(http.StatusBadRequest, desc, params.Get("error_code"), 0, nil)
	}

	s := &models.Session{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		TokenType:    params.Get("token_type"),
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return nil, errors.New("callback url carries no session tokens")
	}
	s.ExpiresIn, _ = strconv.ParseInt(params.Get("expires_in"), 10, 64)
	s.ExpiresAt, _ = strconv.ParseInt(params.Get("expires_at"), 10, 64)

	var user models.User
	err = p.t.do(ctx, "gotrue.get_user", netx.Request{
		Method: http.MethodGet,
		URL:    p.endpoint("/user", nil),
		Header: p.headers(s.AccessToken),
	}, &user)
	if err != nil {
		return nil, err
	}
	s.User = user

	p.setSession(ctx, s, models.EventSignedIn)
	return p.current(), nil
}

// UpdateUser changes the user metadata of the signed-in user.
func (p *GoTrueProvider) UpdateUser(ctx context.Context, data map[string]any) (*models.User, error) {
	s, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, autherr.New(autherr.KindSessionInvalid, "not signed in", ErrNoSession)
	}

	var u models.User
	err = p.t.do(ctx, "gotrue.update_user", netx.Request{
		Method: http.MethodPut,
		URL:    p.endpoint("/user", nil),
		Header: p.headers(s.AccessToken),
		Body:   map[string]any{"data": data},
	}, &u)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.session != nil && p.session.User.ID == u.ID {
		p.session.User = u
		p.persistLocked(ctx)
	}
	p.mu.Unlock()
	return &u, nil
}

func (p *GoTrueProvider) Ping(ctx context.Context) error {
	err := p.t.do(ctx, "gotrue.health", netx.Request{
		Method: http.MethodGet,
		URL:    p.endpoint("/health", nil),
		Header: p.headers(""),
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// current returns a copy of the session, nil when signed out.
func (p *GoTrueProvider) current() *models.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

func (p *GoTrueProvider) setSession(ctx context.Context, s *models.Session, kind models.EventKind) {
	p.normalize(s)

	p.mu.Lock()
	p.session = s
	p.persistLocked(ctx)
	ev := models.AuthEvent{Kind: kind, Session: p.copyLocked(), At: p.now()}
	p.mu.Unlock()

	p.log.Info(ctx, "auth state changed", "event", kind, "user_id", s.UserID())
	p.bus.Publish(ev)
}

func (p *GoTrueProvider) clearSession(ctx context.Context) {
	p.mu.Lock()
	p.session = nil
	if err := p.store.Delete(ctx, common.SessionCacheKey); err != nil {
		p.log.Warn(ctx, "failed to drop session cache", "error", err)
	}
	p.mu.Unlock()

	p.log.Info(ctx, "auth state changed", "event", models.EventSignedOut)
	p.bus.Publish(models.AuthEvent{Kind: models.EventSignedOut, At: p.now()})
}

func (p *GoTrueProvider) copyLocked() *models.Session {
	s := *p.session
	return &s
}

func (p *GoTrueProvider) persistLocked(ctx context.Context) {
	b, err := json.Marshal(p.session)
	if err == nil {
		err = p.store.Set(ctx, common.SessionCacheKey, b)
	}
	if err != nil {
		p.log.Warn(ctx, "failed to cache session", "error", err)
	}
}

// normalize fills expiry and user ID from expires_in or the token claims
// when the provider left them out.
func (p *GoTrueProvider) normalize(s *models.Session) {
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = p.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if s.ExpiresAt != 0 && s.User.ID != "" {
		return
	}
	claims, err := ParseTokenClaims(s.AccessToken)
	if err != nil {
		return
	}
	if s.ExpiresAt == 0 && !claims.ExpiresAt.IsZero() {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if s.User.ID == "" {
		s.User.ID = claims.Subject
	}
	if s.User.Email == "" {
		s.User.Email = claims.Email
	}
}
