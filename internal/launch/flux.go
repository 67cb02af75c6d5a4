package launch

import (
	"fmt"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// encodeFlux sizes the job for the Flux scheduler by node and rank counts.
// GPUs are requested per rank, sized from the first gpu group in the
// allocation.
func encodeFlux(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description

	var b strings.Builder
	fmt.Fprintf(&b, "flux run -N %d -n %d -c %d",
		len(slots.Nodes), d.CPUProcesses, threadDepth(d))
	if d.GPUProcesses > 0 {
		fmt.Fprintf(&b, " -g %d", gpusPerRank(slots))
	}
	b.WriteString(" " + taskCommand(d))

	return Result{Command: b.String()}, nil
}

func gpusPerRank(slots api.SlotAllocation) int {
	for _, node := range slots.Nodes {
		if len(node.GPUMap) > 0 {
			return len(node.GPUMap[0])
		}
	}
	return 0
}
