package launch

import "github.com/pilotrun/pilotrun/pkg/api"

// encodeFork passes the task command through untouched. Placement is
// whatever the spawning process already has; slot topology is ignored.
func encodeFork(task api.Task) (Result, error) {
	return Result{Command: taskCommand(task.Description)}, nil
}
