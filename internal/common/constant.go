// Package common contains shared constants and sentinel errors used across
// SessionKeeper components.
package common

// Storage keys used by the client in its durable key/value store.
const (
	// SessionCacheKey holds the provider session cache (JSON-encoded session).
	SessionCacheKey = "supabase.auth.token"

	// ClientInstanceIDKey holds the persisted client instance UUID.
	// It is not an auth artifact and survives sign-out.
	ClientInstanceIDKey = "client_instance_id"

	// CooldownKeySuffix is appended to a gate key to build the storage key of
	// its cooldown entry, e.g. "auth" -> "auth_rate_limit_until".
	CooldownKeySuffix = "_rate_limit_until"

	// DefaultGateKey is the gate key shared by sign-in and session sync calls.
	DefaultGateKey = "auth"

	// SessionScopePrefix namespaces entries that only live for one session
	// (the equivalent of per-tab session storage). All of them are dropped on sign-out.
	SessionScopePrefix = "session:"

	// AdminFlagPrefix namespaces admin-mode flags; they are dropped on sign-out.
	AdminFlagPrefix = "admin_"
)

// Patterns identifying auth-related storage keys and cookie names.
const (
	AuthArtifactPrefix = "sb-"
	AuthMarkerSupabase = "supabase"
	AuthMarkerAuth     = "auth"
)

// ClientIDHeaderName is the HTTP header carrying the client instance ID on
// outbound requests.
const ClientIDHeaderName = "X-Client-Id"
