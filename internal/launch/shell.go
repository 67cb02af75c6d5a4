package launch

import (
	"fmt"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// encodeShell keeps the task command intact and produces a remote-shell
// wrapper targeting the first allocated node. The wrapper re-binds the
// loader environment on the far side, so the command survives the hop.
func encodeShell(shell string, task api.Task, slots api.SlotAllocation) (Result, error) {
	wrapper := fmt.Sprintf(`%s %s env LD_LIBRARY_PATH="$LD_LIBRARY_PATH" PATH="$PATH"`,
		shell, slots.Nodes[0].Name)
	return Result{
		Command: taskCommand(task.Description),
		Wrapper: wrapper,
	}, nil
}
