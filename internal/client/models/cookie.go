package models

import "time"

// Cookie is a persisted HTTP cookie of the client jar.
type Cookie struct {
	Name  string
	Value string
	// Domain is the host the cookie is scoped to, lower-case, without port.
	Domain    string
	Path      string
	ExpiresAt time.Time
	Secure    bool
	HTTPOnly  bool
}

// Session reports whether the cookie has no expiry.
func (c Cookie) Session() bool {
	return c.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the cookie is expired at now.
func (c Cookie) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}
