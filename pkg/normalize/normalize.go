// Package normalize canonicalizes relay URLs so that the same endpoint
// written in different ways maps to one relay record.
package normalize

import (
	"net/url"
	"strings"
)

// URL normalizes a relay url: trims whitespace, lowercases, replaces http://
// and https:// schemes with ws:// and wss://, assumes wss:// when no scheme
// is given, and drops any trailing path slash. Returns an empty string when
// the input cannot be parsed as a URL.
func URL(u string) string {
	if u == "" {
		return ""
	}
	u = strings.ToLower(strings.TrimSpace(u))
	if !strings.HasPrefix(u, "http://") &&
		!strings.HasPrefix(u, "https://") &&
		!strings.HasPrefix(u, "ws://") &&
		!strings.HasPrefix(u, "wss://") {

		// no scheme means assume the common case, secure websocket
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}
