package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may call the API.
// Requests without an Origin header and same-origin requests are always allowed.
type OriginPolicy struct {
	listed map[string]bool
}

// NewOriginPolicy creates a policy that also admits the given cross origins
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{listed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			p.listed[o] = true
		}
	}
	return p
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// Listed reports whether origin is a configured cross origin
func (p *OriginPolicy) Listed(origin string) bool {
	return p != nil && p.listed[normalizeOrigin(origin)]
}

// Allows reports whether r may be served. It also works as a websocket CheckOrigin.
func (p *OriginPolicy) Allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.Listed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
