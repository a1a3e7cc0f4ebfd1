package gateway

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stayview/reviewgate/internal/routing"
)

// ClassifyTier resolves a policy tier for every request and stores it in
// the request context for the limiter and metrics further down the chain.
// An unmatched route is not an error; it gets the table's default tier.
func ClassifyTier(table *routing.Table, logger zerolog.Logger, skip map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			tier, matched := table.Classify(r.Method, r.URL.Path)
			if !matched {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("tier", string(tier)).
					Msg("route unmatched, default tier applied")
			}

			next.ServeHTTP(w, routing.WithTier(r, tier))
		})
	}
}
