package models

import "time"

// User is the identity-provider user attached to a session.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Session is the read-only mirror of the provider session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is seconds until expiry as sent by the provider.
	ExpiresIn int64 `json:"expires_in,omitempty"`
	// ExpiresAt is the absolute expiry, Unix seconds.
	ExpiresAt int64 `json:"expires_at"`
	User      User  `json:"user"`
}

// UserID returns the ID of the session owner.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Expiry returns ExpiresAt as time, zero when unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Expired reports whether the access token is expired at now, allowing
// for margin of clock skew.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(margin).Before(exp)
}

// Credentials are the email/password pair for sign-in. Password is a byte
// slice so callers can wipe it after use.
type Credentials struct {
	Email    string
	Password []byte
}

// SignUpFields is the registration form.
type SignUpFields struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
}

// SignUpResult reports the outcome of registration.
type SignUpResult struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	// VerificationPending is true when the account must be confirmed by email
	// before sign-in succeeds.
	VerificationPending bool `json:"verification_pending"`
}
