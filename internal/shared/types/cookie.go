package types

import "time"

// Cookie holds the attributes persisted for one session cookie
type Cookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HTTPOnly bool       `json:"http_only,omitempty"`
}

// CookieSnapshot groups cookies by domain, then by name
type CookieSnapshot map[string]map[string]Cookie

// Put records a cookie, replacing any prior entry with the same domain and name.
func (s CookieSnapshot) Put(c Cookie) {
	byName, ok := s[c.Domain]
	if !ok {
		byName = make(map[string]Cookie)
		s[c.Domain] = byName
	}
	byName[c.Name] = c
}

// Len returns the number of cookies across all domains
func (s CookieSnapshot) Len() int {
	n := 0
	for _, byName := range s {
		n += len(byName)
	}
	return n
}

// Clone returns a deep copy of the snapshot.
func (s CookieSnapshot) Clone() CookieSnapshot {
	if s == nil {
		return nil
	}
	out := make(CookieSnapshot, len(s))
	for domain, byName := range s {
		inner := make(map[string]Cookie, len(byName))
		for name, c := range byName {
			if c.Expires != nil {
				exp := *c.Expires
				c.Expires = &exp
			}
			inner[name] = c
		}
		out[domain] = inner
	}
	return out
}
