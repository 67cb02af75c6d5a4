package launch

import (
	"fmt"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// encodeMPIRun starts one rank per core group and pins ranks to nodes with
// an explicit host list, one entry per rank.
func encodeMPIRun(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	cmd := fmt.Sprintf("mpirun -np %d -host %s %s",
		d.CPUProcesses, strings.Join(rankHosts(slots), ","), taskCommand(d))
	return Result{Command: cmd}, nil
}

// encodeMPIExec mirrors mpirun for MPICH-style launchers, which spell the
// rank count -n instead of -np.
func encodeMPIExec(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	cmd := fmt.Sprintf("mpiexec -n %d -host %s %s",
		d.CPUProcesses, strings.Join(rankHosts(slots), ","), taskCommand(d))
	return Result{Command: cmd}, nil
}
