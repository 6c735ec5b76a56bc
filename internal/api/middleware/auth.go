package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/api/presenter"
	"github.com/darmiel/satellite/internal/gate"
)

// SatelliteAuth guards every satellite endpoint with the gate.
// On success the decision is attached to the request context.
func SatelliteAuth(g *gate.Gate) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := gate.ClientIP(r)
			d := g.Evaluate(r, clientIP)

			if !d.Allowed {
				log.Ctx(r.Context()).Warn().
					Object("decision", d).
					Str("path", r.URL.Path).
					Msg("satellite.request.rejected")
				presenter.Rejected(w, r, string(d.Reason), d.Reason.Message(), d.Reason.Status())
				return
			}

			next.ServeHTTP(w, r.WithContext(gate.WithDecision(r.Context(), d)))
		})
	}
}
