package gateway

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the shared bucket for requests whose origin cannot be
// determined. Collapsing them into one key keeps identification failures
// from granting unlimited access.
const UnknownClient = "unknown"

// KeyFunc derives the rate-limit identity for a request.
type KeyFunc func(r *http.Request) string

// ClientKeyFunc builds the default identity derivation: a trusted client
// header if configured, the first X-Forwarded-For entry when the deployment
// trusts its proxy, then the transport-level remote host, then the shared
// unknown bucket. The returned function is total; it never fails.
func ClientKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// first entry is the originating client
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			return addr
		}
		return UnknownClient
	}
}
