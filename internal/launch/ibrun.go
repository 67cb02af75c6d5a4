package launch

import (
	"fmt"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// rankOffset returns the position of the allocation's first rank in the flat
// rank space of the whole partition. For node i and core group g the group
// sits at rank g[0]/len(g) + i*cores_per_node; the offset is the minimum over
// all groups.
func rankOffset(slots api.SlotAllocation) int {
	offset := -1
	for i, node := range slots.Nodes {
		for _, group := range node.CoreMap {
			o := group[0]/len(group) + i*slots.CoresPerNode
			if offset < 0 || o < offset {
				offset = o
			}
		}
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// encodeIBRun addresses SLURM ranks through TACC's ibrun shim, which takes a
// rank count and the offset of the first rank instead of a host list.
func encodeIBRun(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	cmd := fmt.Sprintf("ibrun -n %d -o %d %s",
		d.CPUProcesses, rankOffset(slots), taskCommand(d))
	return Result{Command: cmd}, nil
}

// encodeDPlace pins the task to a contiguous core window starting at the
// allocation offset, as used on SGI shared-memory machines.
func encodeDPlace(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	offset := rankOffset(slots)
	cmd := fmt.Sprintf("dplace -c %d-%d %s",
		offset, offset+d.CPUProcesses-1, taskCommand(d))
	return Result{Command: cmd}, nil
}
