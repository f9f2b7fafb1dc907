package models

import "time"

// EventKind is the type of an auth state change.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventSignedOut      EventKind = "SIGNED_OUT"
)

// AuthEvent is one auth state change. Session is nil for SIGNED_OUT.
type AuthEvent struct {
	Kind    EventKind
	Session *Session
	At      time.Time
}
