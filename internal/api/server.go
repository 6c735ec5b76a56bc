package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/darmiel/satellite/internal/api/middleware"
	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/gate"
	"github.com/darmiel/satellite/internal/health"
	"github.com/darmiel/satellite/internal/metrics"
	"github.com/darmiel/satellite/internal/registration"
	"github.com/darmiel/satellite/internal/syncer"
	"github.com/darmiel/satellite/internal/tasks"
	"github.com/darmiel/satellite/internal/updates"
)

// Deps are the collaborators of the satellite API. Publisher may be nil when metrics are disabled.
type Deps struct {
	Config       *config.Config
	Gate         *gate.Gate
	Tasks        *tasks.Manager
	Registration *registration.Manager
	Syncer       *syncer.Orchestrator
	Collector    *metrics.Collector
	Publisher    *metrics.Publisher
	Health       *health.Checker
	Cache        *cache.Cache
	Updates      *updates.Dispatcher
}

type Server struct {
	Deps
	startedAt time.Time
	now       func() time.Time
}

func NewServer(d Deps) *Server {
	now := time.Now
	return &Server{Deps: d, startedAt: now(), now: now}
}

// Routes mounts the satellite endpoints below the configured api prefix, all behind the gate.
// The liveness probe stays public.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.Config.Security.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RecoverMiddleware)
	r.Use(middleware.CorrelationIDMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.Get(HealthCheckRoute, s.handleLiveness)

	r.Route("/"+s.Config.Satellite.APIPrefix, func(r chi.Router) {
		r.Use(middleware.SatelliteAuth(s.Gate))

		r.Get(HealthRoute, s.handleHealth)
		r.Get(StatusRoute, s.handleStatus)
		r.Get(InfoRoute, s.handleInfo)
		r.Get(MetricsRoute, s.handleMetrics)
		r.Post(CommandsRoute, s.handleCommand)
		r.Post(UpdatesRoute, s.handleUpdates)
		r.Delete(CacheRoute, s.handleClearCache)

		r.Get(ListTasksRoute, s.handleListTasks)
		r.Get(LogsForTaskRoute, s.handleLogsForTask)
	})
	return r
}
