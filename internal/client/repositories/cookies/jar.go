package cookies

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Jar is an http.CookieJar over a Repository. It implements host and path
// matching only; public-suffix rules are not applied because the jar only
// ever talks to the configured application endpoint.
type Jar struct {
	mu   sync.Mutex
	repo Repository
	log  logging.Logger
	now  func() time.Time
}

func NewJar(repo Repository, log logging.Logger) *Jar {
	return &Jar{repo: repo, log: log, now: time.Now}
}

var _ http.CookieJar = (*Jar)(nil)

// SetCookies stores the cookies received in a response from u.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx := context.Background()
	now := j.now()
	host := canonicalHost(u.Host)

	for _, hc := range cookies {
		c := models.Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   host,
			Path:     hc.Path,
			Secure:   hc.Secure,
			HTTPOnly: hc.HttpOnly,
		}
		if d := strings.TrimPrefix(strings.ToLower(hc.Domain), "."); d != "" {
			if !domainMatch(host, d) {
				continue
			}
			c.Domain = d
		}
		if c.Path == "" || c.Path[0] != '/' {
			c.Path = defaultPath(u.Path)
		}

		switch {
		case hc.MaxAge < 0:
			c.ExpiresAt = time.Unix(0, 0)
		case hc.MaxAge > 0:
			c.ExpiresAt = now.Add(time.Duration(hc.MaxAge) * time.Second)
		case !hc.Expires.IsZero():
			c.ExpiresAt = hc.Expires
		}

		var err error
		if c.ExpiredAt(now) {
			err = j.repo.Delete(ctx, c.Domain, c.Path, c.Name)
		} else {
			err = j.repo.Save(ctx, c)
		}
		if err != nil {
			j.log.Warn(ctx, "failed to store cookie", "name", c.Name, "error", err)
		}
	}
}

// Cookies returns the cookies to send in a request to u. Expired cookies
// found on the way are purged.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx := context.Background()
	all, err := j.repo.List(ctx)
	if err != nil {
		j.log.Warn(ctx, "failed to load cookies", "error", err)
		return nil
	}

	now := j.now()
	host := canonicalHost(u.Host)
	path := u.Path
	if path == "" {
		path = "/"
	}
	secure := u.Scheme == "https"

	var out []*http.Cookie
	for _, c := range all {
		if c.ExpiredAt(now) {
			if err := j.repo.Delete(ctx, c.Domain, c.Path, c.Name); err != nil {
				j.log.Warn(ctx, "failed to purge cookie", "name", c.Name, "error", err)
			}
			continue
		}
		if !domainMatch(host, c.Domain) || !pathMatch(path, c.Path) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func canonicalHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
