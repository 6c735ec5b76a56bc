package api

import "github.com/darmiel/satellite/internal/api/middleware"

// public
const HealthCheckRoute = middleware.LivenessPath

// relative to the configured api prefix
const (
	HealthRoute   = "/health"
	StatusRoute   = "/status"
	InfoRoute     = "/info"
	MetricsRoute  = "/metrics"
	CommandsRoute = "/commands"
	UpdatesRoute  = "/updates"
	CacheRoute    = "/cache"

	TaskParent       = "/tasks"
	ListTasksRoute   = TaskParent
	LogsForTaskRoute = TaskParent + "/{name}/logs"
)

// task names the remote commands map to
const (
	TaskSync     = "sync"
	TaskMetrics  = "metrics"
	TaskRegister = "register"
)
