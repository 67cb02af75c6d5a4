package launch

import (
	"fmt"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// encodePOE narrows LSB_MCPU_HOSTS to this task's share of the allocation.
// LSF exports the variable for the whole job, so it has to be overridden per
// task with "<node> <ranks> " pairs, trailing separator included, before poe
// reads it.
func encodePOE(task api.Task, slots api.SlotAllocation) (Result, error) {
	var hosts strings.Builder
	for _, node := range slots.Nodes {
		fmt.Fprintf(&hosts, "%s %d ", node.Name, len(node.CoreMap))
	}
	cmd := fmt.Sprintf("LSB_MCPU_HOSTS=\"%s\" poe %s",
		hosts.String(), taskCommand(task.Description))
	return Result{Command: cmd}, nil
}
