package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/stayview/reviewgate/internal/ratelimit"
	"github.com/stayview/reviewgate/internal/routing"
)

// RateLimitOptions configures the admission-control middleware.
type RateLimitOptions struct {
	Registry *ratelimit.Registry

	// KeyFn derives the client identity. Defaults to ClientKeyFunc("", false).
	KeyFn KeyFunc

	// OverrideTier pins every request to one tier, bypassing the classifier.
	// Useful when a route's sensitivity is known at registration time.
	OverrideTier ratelimit.Tier

	// SkipPaths exempts ops endpoints from limiting.
	SkipPaths map[string]struct{}

	// SuppressHeaders disables X-RateLimit-* headers on allowed responses.
	// Rejections always carry them.
	SuppressHeaders bool

	Logger zerolog.Logger
	Now    func() time.Time

	// Hooks for metrics, keyed by tier.
	OnLimited    func(tier string)
	OnStoreError func(tier string)
}

// RateLimit enforces per-tier quotas. One counter check per request, no
// retries. When the counter store is unreachable the request is forwarded
// anyway: blocking legitimate traffic because the quota backend is down is
// the wrong failure mode for this gateway.
func RateLimit(opts RateLimitOptions) Middleware {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientKeyFunc("", false)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// A store outage turns every request into a warn log; keep it to one
	// line per second so the log stays readable during the incident.
	errLog := rate.NewLimiter(rate.Every(time.Second), 1)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := opts.SkipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			tier := opts.OverrideTier
			if tier == "" {
				if t, ok := routing.TierFrom(r); ok {
					tier = t
				}
			}

			lim, ok := opts.Registry.ForTier(tier)
			if !ok {
				// The policy table is validated at startup, so this is a
				// wiring bug. Serve the request rather than punish the caller.
				opts.Logger.Warn().Str("tier", string(tier)).Msg("no limiter for tier, admitting without check")
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			dec, err := lim.Check(r.Context(), key)
			if err != nil {
				if opts.OnStoreError != nil {
					opts.OnStoreError(string(tier))
				}
				if errLog.Allow() {
					opts.Logger.Warn().Err(err).
						Str("tier", string(tier)).
						Str("client", key).
						Msg("counter store unavailable, failing open")
				}
				next.ServeHTTP(w, r)
				return
			}

			if !dec.Allowed {
				if opts.OnLimited != nil {
					opts.OnLimited(string(tier))
				}
				setQuotaHeaders(w, dec)
				retryAfter := int(dec.RetryAfter(opts.Now()).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeRateLimited(w, retryAfter)
				return
			}

			if !opts.SuppressHeaders {
				setQuotaHeaders(w, dec)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(w http.ResponseWriter, dec ratelimit.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetUnixSec, 10))
}
