package launch

import (
	"github.com/pilotrun/pilotrun/pkg/api"
)

// ResourceLayoutName returns the side-file name carrying the rank layout for
// one task. The file must land in the task sandbox before the command runs.
func ResourceLayoutName(uid string) string {
	return "rs_layout_cu_" + uid
}

// encodeJSRun carries no inline topology; the placement rides in a resource
// layout side file referenced through --erf_input. When the gpu ranks speak
// MPI, --smpiargs switches Spectrum MPI into CUDA-aware mode.
func encodeJSRun(task api.Task, slots api.SlotAllocation) (Result, error) {
	d := task.Description
	name := ResourceLayoutName(task.UID)

	cmd := "jsrun --erf_input " + name
	if d.GPUProcessType == api.ProcessTypeMPI {
		cmd += " --smpiargs=\"-gpu\""
	}
	cmd += " " + taskCommand(d)

	return Result{
		Command: cmd,
		SideFiles: []SideFile{
			{Name: name, Content: FormatResourceLayout(rankBindings(slots))},
		},
	}, nil
}
