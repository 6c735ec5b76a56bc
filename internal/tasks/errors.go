package tasks

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when a run is requested while the task is running.
var ErrAlreadyRunning = errors.New("task is already running")

type TaskNotFoundError struct {
	Name string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task '%s' not found", e.Name)
}
