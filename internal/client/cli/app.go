package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// getSimpleText, getOptionalText and getPassword are indirections used to
// facilitate testing.
var (
	getSimpleText   = GetSimpleText
	getOptionalText = GetOptionalText
	getPassword     = GetPassword
)

// AuthAPI is the part of services.AuthService the CLI drives.
type AuthAPI interface {
	SignIn(ctx context.Context, creds models.Credentials) error
	SignUp(ctx context.Context, fields models.SignUpFields) (*models.SignUpResult, error)
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignInWithMagicLink(ctx context.Context, email, redirectTo string) error
	CompleteSignIn(ctx context.Context, callbackURL string) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.Profile, error)
	SignOut(ctx context.Context) error
	User() *models.User
	Profile() *models.Profile
}

// HealthAPI is the part of services.SessionHealthMonitor the CLI drives.
type HealthAPI interface {
	NotifyVisible()
	CheckNow() services.HealthState
	Refresh(ctx context.Context) error
	State() services.HealthState
}

type App struct {
	auth        AuthAPI
	health      HealthAPI
	mode        func() services.Mode
	redirectURL string
	log         logging.Logger
	reader      *bufio.Reader
	out         io.Writer

	mu      sync.Mutex
	pending []string
}

// NewApp builds the REPL application. mode reports provider connectivity;
// redirectURL is sent with OAuth, magic-link and password-reset requests.
func NewApp(auth AuthAPI, health HealthAPI, mode func() services.Mode, redirectURL string, log logging.Logger) *App {
	return &App{
		auth:        auth,
		health:      health,
		mode:        mode,
		redirectURL: redirectURL,
		log:         log,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}
}

// Run starts the REPL on standard input and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to SessionKeeper CLI (type 'help' for commands)")
	runREPL(ctx, a, a.status, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool {
	return a.auth.User() != nil
}

func (a *App) status() string {
	var parts []string
	if u := a.auth.User(); u != nil {
		parts = append(parts, u.Email)
	}
	if a.mode != nil {
		if m := a.mode(); m != "" {
			parts = append(parts, string(m))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (a *App) visible() {
	a.health.NotifyVisible()
}

// OnHealth queues a notice for a health report. It is registered with the
// monitor's OnChange.
func (a *App) OnHealth(r services.HealthReport) {
	var msg string
	switch r.State {
	case services.HealthValid:
		msg = "Session is valid."
	case services.HealthRefreshing:
		msg = "Refreshing session..."
	case services.HealthIssueDetected:
		if r.Offline {
			msg = "Session could not be verified: the identity provider is unreachable."
		} else {
			msg = "Session problem detected."
		}
		if r.Err != nil {
			msg += " " + autherr.UserMessage(r.Err)
		}
		msg += " Available actions: " + strings.Join(r.Actions, ", ")
	}

	a.mu.Lock()
	a.pending = append(a.pending, msg)
	a.mu.Unlock()
}

// OnMode queues a notice for a connectivity change.
func (a *App) OnMode(m services.Mode) {
	a.mu.Lock()
	a.pending = append(a.pending, fmt.Sprintf("Switched to %s mode", m))
	a.mu.Unlock()
}

func (a *App) notices() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.pending
	a.pending = nil
	return n
}

// report shows err to the user in plain words and logs the details.
func (a *App) report(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	a.log.Debug(ctx, "command failed", "command", op, "kind", autherr.KindOf(err), "error", err)
	printlnFn(autherr.UserMessage(err))
}
