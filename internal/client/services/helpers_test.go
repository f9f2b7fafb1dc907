package services

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *client.Repositories {
	t.Helper()
	repos, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionJSON(access string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]any{"id": "user-1", "email": "ada@example.com"},
	}
}

type fakeNav struct {
	mu      sync.Mutex
	paths   []string
	urls    []string
	prompts []string
	openErr error
}

func (n *fakeNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *fakeNav) OpenURL(rawURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, rawURL)
	return n.openErr
}

func (n *fakeNav) PromptReload(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompts = append(n.prompts, reason)
}

func (n *fakeNav) navigated() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func (n *fakeNav) reloadPrompts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.prompts)
}

type pushCall struct {
	Event  models.EventKind
	UserID string
}

type fakeEndpoint struct {
	mu        sync.Mutex
	pushes    []pushCall
	deletes   int
	pushErrs  []error
	deleteErr error
	signUp    func(models.SignUpFields) (*models.SignUpResult, error)
	signUps   int
}

func (e *fakeEndpoint) PushSession(_ context.Context, event models.EventKind, s *models.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushes = append(e.pushes, pushCall{Event: event, UserID: s.UserID()})
	if len(e.pushErrs) > 0 {
		err := e.pushErrs[0]
		e.pushErrs = e.pushErrs[1:]
		return err
	}
	return nil
}

func (e *fakeEndpoint) DeleteSession(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes++
	return e.deleteErr
}

func (e *fakeEndpoint) SignUp(_ context.Context, f models.SignUpFields) (*models.SignUpResult, error) {
	e.mu.Lock()
	e.signUps++
	fn := e.signUp
	e.mu.Unlock()
	if fn != nil {
		return fn(f)
	}
	return &models.SignUpResult{UserID: "user-new", Email: f.Email, VerificationPending: true}, nil
}

func (e *fakeEndpoint) snapshot() ([]pushCall, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]pushCall(nil), e.pushes...), e.deletes
}

type fakeProfiles struct {
	mu       sync.Mutex
	rows     map[string]models.Profile
	getCalls int
}

func newFakeProfiles(rows ...models.Profile) *fakeProfiles {
	p := &fakeProfiles{rows: map[string]models.Profile{}}
	for _, r := range rows {
		p.rows[r.ID] = r
	}
	return p
}

func (p *fakeProfiles) GetProfile(_ context.Context, _, userID string) (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	r, ok := p.rows[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (p *fakeProfiles) UpdateProfile(_ context.Context, _, userID string, upd models.ProfileUpdate) (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.rows[userID]
	r.ID = userID
	r = upd.Apply(r)
	p.rows[userID] = r
	return &r, nil
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
