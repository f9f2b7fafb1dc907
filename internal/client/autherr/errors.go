// Package autherr is the error taxonomy of the session layer.
//
// Provider and session-endpoint failures are classified once, where the HTTP
// call returns (see client.mapError). Everything above that boundary receives
// an *Error, matches it with errors.Is against the sentinels below, and only
// decides how to present it (UserMessage).
package autherr

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
)

// Kind is the class of an auth failure.
type Kind int

const (
	// KindNetworkOrProvider is anything not classified more precisely.
	KindNetworkOrProvider Kind = iota
	KindRateLimited
	KindInvalidCredentials
	KindUnconfirmedEmail
	KindSessionInvalid
	KindSignOutPartialFailure
	// KindCooldown means the local rate-limit gate refused the call.
	KindCooldown
	// KindAuthenticationFailed means sign-in returned but no session appeared in time.
	KindAuthenticationFailed
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnconfirmedEmail:
		return "unconfirmed_email"
	case KindSessionInvalid:
		return "session_invalid"
	case KindSignOutPartialFailure:
		return "sign_out_partial_failure"
	case KindCooldown:
		return "rate_limit_cooldown"
	case KindAuthenticationFailed:
		return "authentication_failed"
	default:
		return "network_or_provider"
	}
}

// Error is a classified auth failure.
type Error struct {
	Kind Kind
	// Status is the HTTP status of the failed call, zero for local failures.
	Status int
	// Message is the provider's own message, kept verbatim.
	Message string
	// RetryAfter is a server-supplied retry hint, zero when absent.
	RetryAfter time.Duration
	// Remaining is the time left on an active cooldown (KindCooldown only).
	Remaining time.Duration
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrRateLimited)
// holds for any rate-limited failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Status != 0 || t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrNetworkOrProvider     = &Error{Kind: KindNetworkOrProvider}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrUnconfirmedEmail      = &Error{Kind: KindUnconfirmedEmail}
	ErrSessionInvalid        = &Error{Kind: KindSessionInvalid}
	ErrSignOutPartialFailure = &Error{Kind: KindSignOutPartialFailure}
	ErrCooldown              = &Error{Kind: KindCooldown}
	ErrAuthenticationFailed  = &Error{Kind: KindAuthenticationFailed}
)

// New builds an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// NewCooldown builds the gate's fail-fast error.
func NewCooldown(remaining time.Duration) *Error {
	return &Error{
		Kind:      KindCooldown,
		Status:    http.StatusTooManyRequests,
		Message:   fmt.Sprintf("rate limit cooldown active for %s", remaining.Round(time.Second)),
		Remaining: remaining,
	}
}

var (
	waitHintRe = regexp.MustCompile(`after (\d+) seconds?`)
)

// Classify turns a failed provider/server response into an *Error.
// code is the provider's machine-readable error code when it sends one.
func Classify(status int, message, code string, retryAfter time.Duration, cause error) *Error {
	e := &Error{
		Kind:       KindNetworkOrProvider,
		Status:     status,
		Message:    message,
		RetryAfter: retryAfter,
		Err:        cause,
	}

	lowerMsg := strings.ToLower(message)
	lowerCode := strings.ToLower(code)

	switch {
	case status == http.StatusTooManyRequests || isRateLimitText(lowerMsg) || strings.Contains(lowerCode, "rate_limit"):
		e.Kind = KindRateLimited
		if e.RetryAfter == 0 {
			e.RetryAfter = waitHint(lowerMsg)
		}
	case lowerCode == "invalid_credentials" || strings.Contains(lowerMsg, "invalid login credentials"):
		e.Kind = KindInvalidCredentials
	case lowerCode == "email_not_confirmed" || strings.Contains(lowerMsg, "email not confirmed"):
		e.Kind = KindUnconfirmedEmail
	case status == http.StatusUnauthorized || isSessionCode(lowerCode) || strings.Contains(lowerMsg, "invalid refresh token"):
		e.Kind = KindSessionInvalid
	}
	return e
}

func isSessionCode(code string) bool {
	switch code {
	case "session_not_found", "session_expired", "bad_jwt", "refresh_token_not_found", "refresh_token_already_used":
		return true
	}
	return false
}

func isRateLimitText(lower string) bool {
	return strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit")
}

// waitHint extracts N from GoTrue's "you can only request this after N seconds".
func waitHint(lower string) time.Duration {
	m := waitHintRe.FindStringSubmatch(lower)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// IsRateLimited is the default retry classifier: a classified rate-limit
// error, an unclassified HTTP 429, or any error whose message reads
// "too many requests" / "rate limit". A gate cooldown is not retryable.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == KindRateLimited
	}
	var se *netx.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return isRateLimitText(strings.ToLower(err.Error()))
}

// KindOf reports the kind of err, KindNetworkOrProvider for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNetworkOrProvider
}

// RetryAfterOf returns the server retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) && ae.RetryAfter > 0 {
		return ae.RetryAfter
	}
	var se *netx.StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// UserMessage is the text shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return "Something went wrong. Please try again later."
	}
	switch ae.Kind {
	case KindInvalidCredentials:
		return "Incorrect email or password"
	case KindUnconfirmedEmail:
		return "Please confirm your email address first. Check your inbox for the verification link."
	case KindRateLimited:
		if ae.RetryAfter > 0 {
			return fmt.Sprintf("Too many attempts. Please wait %s and try again.", humanSeconds(ae.RetryAfter))
		}
		return "Too many attempts. Please wait a moment and try again."
	case KindCooldown:
		return fmt.Sprintf("Too many attempts. Please wait %s before trying again.", humanSeconds(ae.Remaining))
	case KindSessionInvalid:
		return "Your session is no longer valid. Refresh the session or reload."
	case KindAuthenticationFailed:
		return "Authentication failed. Please try again."
	case KindSignOutPartialFailure:
		return "Signed out locally, but the server session could not be cleared."
	default:
		return "Something went wrong. Please try again later."
	}
}

func humanSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs <= 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}
