package browser

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// Jar is an http.CookieJar that keeps cookies by domain then name so the
// whole store can be snapshotted and restored.
type Jar struct {
	mu      sync.Mutex
	cookies types.CookieSnapshot
	now     func() time.Time
}

// NewJar creates an empty jar
func NewJar() *Jar {
	return &Jar{cookies: types.CookieSnapshot{}, now: time.Now}
}

// SetCookies records cookies received from u. Cookies whose Domain does not
// cover u's host are dropped.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := strings.ToLower(u.Hostname())
	now := j.now()
	for _, c := range cookies {
		domain, ok := cookieDomain(host, c.Domain)
		if !ok {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}

		expired := c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now))
		if expired {
			if byName, ok := j.cookies[domain]; ok {
				delete(byName, c.Name)
				if len(byName) == 0 {
					delete(j.cookies, domain)
				}
			}
			continue
		}

		stored := types.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		switch {
		case c.MaxAge > 0:
			exp := now.Add(time.Duration(c.MaxAge) * time.Second)
			stored.Expires = &exp
		case !c.Expires.IsZero():
			exp := c.Expires
			stored.Expires = &exp
		}
		j.cookies.Put(stored)
	}
}

// cookieDomain returns the domain a cookie set by host is stored under. The
// Domain attribute must be host itself or a parent of it that is not a
// public suffix; IP hosts only accept their own address.
func cookieDomain(host, attr string) (string, bool) {
	if host == "" {
		return "", false
	}
	domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(attr)), ".")
	if domain == "" || domain == host {
		return host, true
	}
	if net.ParseIP(host) != nil {
		return "", false
	}
	if !strings.HasSuffix(host, "."+domain) {
		return "", false
	}
	if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
		return "", false
	}
	return domain, true
}

// Cookies returns the cookies to send to u
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}
	now := j.now()

	var out []*http.Cookie
	for domain, byName := range j.cookies {
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		for _, c := range byName {
			if c.Secure && u.Scheme != "https" {
				continue
			}
			if c.Expires != nil && !c.Expires.After(now) {
				continue
			}
			if !strings.HasPrefix(path, c.Path) {
				continue
			}
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return out
}

// Snapshot returns a copy of every stored cookie
func (j *Jar) Snapshot() types.CookieSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cookies.Clone()
}

// Restore merges snap into the jar; restored entries replace existing ones
// with the same domain and name.
func (j *Jar) Restore(snap types.CookieSnapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, byName := range snap.Clone() {
		for _, c := range byName {
			j.cookies.Put(c)
		}
	}
}

// MergeSnapshots combines snapshots in order; later entries win per domain
// and name.
func MergeSnapshots(snaps ...types.CookieSnapshot) types.CookieSnapshot {
	out := types.CookieSnapshot{}
	for _, snap := range snaps {
		for _, byName := range snap.Clone() {
			for _, c := range byName {
				out.Put(c)
			}
		}
	}
	return out
}
