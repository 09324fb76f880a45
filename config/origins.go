package config

import (
	"net/url"
	"regexp"

	"github.com/samber/lo"
)

// LoopbackOrigin matches browser origins served from the local machine.
var LoopbackOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// AllowOrigin reports whether a cross-origin request from origin is accepted:
// any configured origin, and any http(s) loopback origin.
func (c Config) AllowOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if lo.Contains(c.AllowedOrigins, origin) {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}
