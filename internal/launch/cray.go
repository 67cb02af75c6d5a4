package launch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// encodeAPRun maps the placement onto ALPS flags: -n total ranks, -N ranks
// per node, -d depth per rank, -cc an explicit core list per rank and -L the
// candidate node list. ALPS wants a uniform layout, so ranks-per-node and the
// core lists are taken from the first node of the allocation.
func encodeAPRun(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	first := slots.Nodes[0]

	groups := make([]string, 0, len(first.CoreMap))
	for _, group := range first.CoreMap {
		cores := make([]string, len(group))
		for i, c := range group {
			cores[i] = strconv.Itoa(c)
		}
		groups = append(groups, strings.Join(cores, ","))
	}

	cmd := fmt.Sprintf("aprun -n %d -N %d -d %d -cc %s -L %s %s",
		d.CPUProcesses, len(first.CoreMap), threadDepth(d),
		strings.Join(groups, ":"), strings.Join(nodeNames(slots), ","),
		taskCommand(d))
	return Result{Command: cmd}, nil
}

// encodeCCMRun runs the task in Cray cluster compatibility mode. CCM handles
// placement itself, so only the rank count is forwarded.
func encodeCCMRun(task api.Task) (Result, error) {
	cmd := fmt.Sprintf("ccmrun -n %d %s",
		task.Description.CPUProcesses, taskCommand(task.Description))
	return Result{Command: cmd}, nil
}
