package client

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
)

// IdentityProvider is the external identity service. Successful sign-in,
// refresh and sign-out publish models.AuthEvent values to subscribers.
type IdentityProvider interface {
	SignIn(ctx context.Context, email string, password []byte) (*models.Session, error)
	SignUp(ctx context.Context, fields models.SignUpFields, redirectTo string) (*models.SignUpResult, error)
	// SignOut revokes the session remotely and always drops it locally.
	SignOut(ctx context.Context) error
	// GetSession returns the current session, refreshing an expired one.
	// It returns (nil, nil) when signed out.
	GetSession(ctx context.Context) (*models.Session, error)
	RefreshSession(ctx context.Context) (*models.Session, error)
	// GetUser validates the current access token with the provider.
	GetUser(ctx context.Context) (*models.User, error)
	Subscribe() *events.Subscription
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// SignInWithOAuth returns the authorization URL to open.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignInWithOtp(ctx context.Context, email, redirectTo string) error
	// SetSessionFromURL completes a redirect flow from the callback URL.
	SetSessionFromURL(ctx context.Context, callbackURL string) (*models.Session, error)
	UpdateUser(ctx context.Context, data map[string]any) (*models.User, error)
	Ping(ctx context.Context) error
}

// SessionEndpoint is the application backend's session-cookie API.
type SessionEndpoint interface {
	PushSession(ctx context.Context, event models.EventKind, session *models.Session) error
	DeleteSession(ctx context.Context) error
	SignUp(ctx context.Context, fields models.SignUpFields) (*models.SignUpResult, error)
}

// ProfileStore reads and writes profile rows on behalf of a signed-in user.
type ProfileStore interface {
	// GetProfile returns (nil, nil) when the user has no profile row.
	GetProfile(ctx context.Context, accessToken, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, accessToken, userID string, upd models.ProfileUpdate) (*models.Profile, error)
}

// KeyValueStore is the storage the provider keeps its session cache in.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
