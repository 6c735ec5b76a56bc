package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/darmiel/satellite/internal/api/presenter"
	"github.com/darmiel/satellite/internal/tasks"
)

// handleListTasks responds with the list of tasks and their statuses.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.Tasks.ListStatus(), http.StatusOK)
}

// handleLogsForTask retrieves the logs of the last run of a task.
func (s *Server) handleLogsForTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logs, err := s.Tasks.GetLogs(name)
	if err != nil {
		var nf tasks.TaskNotFoundError
		if errors.As(err, &nf) {
			presenter.Error(w, r, err.Error(), http.StatusNotFound)
			return
		}
		presenter.Error(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	presenter.JSON(w, r, logs, http.StatusOK)
}
