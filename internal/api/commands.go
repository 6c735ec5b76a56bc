package api

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/api/presenter"
	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/tasks"
)

const (
	CommandSync       = "satellite:sync"
	CommandMetrics    = "satellite:metrics"
	CommandRegister   = "satellite:register"
	CommandCacheClear = "cache:clear"
)

// AllowedCommands is the fixed set of commands the hub may run remotely.
var AllowedCommands = []string{CommandSync, CommandMetrics, CommandRegister, CommandCacheClear}

var commandTasks = map[string]string{
	CommandSync:     TaskSync,
	CommandMetrics:  TaskMetrics,
	CommandRegister: TaskRegister,
}

type CommandPayload struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

type CommandResponse struct {
	Success    bool           `json:"success"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Status     string         `json:"status"`
	Output     string         `json:"output,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type CommandNotAllowedResponse struct {
	Success         bool     `json:"success"`
	Error           string   `json:"error"`
	AllowedCommands []string `json:"allowed_commands"`
}

// handleCommand runs an allow-listed command. Task backed commands start in the background;
// a command whose task is still running is rejected with 409.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var payload CommandPayload
	if err := DecodePayload(r, &payload, false); err != nil {
		presenter.Err(w, r, err, "invalid request payload")
		return
	}
	if payload.Command == "" {
		presenter.Error(w, r, "command is required", http.StatusUnprocessableEntity)
		return
	}
	l := log.Ctx(r.Context()).With().Str("command", payload.Command).Logger()

	if !slices.Contains(AllowedCommands, payload.Command) {
		l.Warn().Msg("satellite.command.denied")
		presenter.JSON(w, r, CommandNotAllowedResponse{
			Error:           "Command not allowed",
			AllowedCommands: AllowedCommands,
		}, http.StatusForbidden)
		return
	}

	resp := CommandResponse{
		Command:    payload.Command,
		Parameters: payload.Parameters,
		Timestamp:  s.now(),
	}

	if payload.Command == CommandCacheClear {
		var req cache.Request
		if err := mapstructure.WeakDecode(payload.Parameters, &req); err != nil {
			presenter.Err(w, r, err, "invalid parameters")
			return
		}
		msg, _, err := s.Cache.Clear(r.Context(), req)
		if err != nil {
			presenter.Err(w, r, presenter.HTTPError{StatusCode: http.StatusInternalServerError, Err: err}, "clearing cache")
			return
		}
		resp.Success, resp.Status, resp.Output = true, "completed", msg
		presenter.JSON(w, r, resp, http.StatusOK)
		return
	}

	err := s.Tasks.Trigger(commandTasks[payload.Command])
	var nf tasks.TaskNotFoundError
	switch {
	case errors.Is(err, tasks.ErrAlreadyRunning):
		presenter.Error(w, r, "command is already running", http.StatusConflict)
		return
	case errors.As(err, &nf):
		presenter.Error(w, r, "command is disabled on this satellite", http.StatusServiceUnavailable)
		return
	case err != nil:
		presenter.Err(w, r, presenter.HTTPError{StatusCode: http.StatusInternalServerError, Err: err}, "running command")
		return
	}

	l.Info().Msg("satellite.command.triggered")
	resp.Success, resp.Status = true, "triggered"
	presenter.JSON(w, r, resp, http.StatusAccepted)
}
