package launch

import (
	"fmt"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// exportedEnvNames are forwarded into every DVM-family launch. The list is
// fixed rather than derived from the caller's environment so that identical
// placements always compile to identical command lines.
var exportedEnvNames = []string{
	"LD_LIBRARY_PATH",
	"PATH",
	"PYTHONPATH",
	"RP_SESSION_ID",
	"RP_PILOT_ID",
	"RP_AGENT_ID",
	"RP_SPAWNER_ID",
	"RP_TASK_ID",
}

func exportFlags() string {
	parts := make([]string, len(exportedEnvNames))
	for i, name := range exportedEnvNames {
		parts[i] = "-x " + name
	}
	return strings.Join(parts, " ")
}

// mangledRankHosts is the per-rank host list for DVM launchers. Some Cray
// frontends report nodes as "<machine>_<nid>" while the DVM only knows the
// bare nid, so everything up to the last underscore is dropped.
func mangledRankHosts(slots api.SlotAllocation) []string {
	hosts := rankHosts(slots)
	for i, h := range hosts {
		if idx := strings.LastIndexByte(h, '_'); idx >= 0 {
			hosts[i] = h[idx+1:]
		}
	}
	return hosts
}

// dvmProcs: a DVM runs a single instance of the task unless the task itself
// is MPI, in which case every rank is started by the DVM.
func dvmProcs(d api.TaskDescription) int {
	if d.CPUProcessType == api.ProcessTypeMPI {
		return d.CPUProcesses
	}
	return 1
}

func orteCommand(task api.Task, slots api.SlotAllocation) string {
	var b strings.Builder
	b.WriteString("orterun")
	if dvm := slots.LMInfo.DVMURI; dvm != "" {
		fmt.Fprintf(&b, " --hnp \"%s\"", dvm)
	}
	fmt.Fprintf(&b, " -np %d -host %s --bind-to none --oversubscribe %s",
		dvmProcs(task.Description),
		strings.Join(mangledRankHosts(slots), ","),
		exportFlags())
	return b.String()
}

func prteCommand(task api.Task, slots api.SlotAllocation) string {
	var b strings.Builder
	b.WriteString("prun")
	if dvm := slots.LMInfo.DVMURI; dvm != "" {
		fmt.Fprintf(&b, " --dvm-uri \"%s\"", dvm)
	}
	fmt.Fprintf(&b, " -np %d -host %s --bind-to hwthread --oversubscribe %s",
		dvmProcs(task.Description),
		strings.Join(mangledRankHosts(slots), ","),
		exportFlags())
	return b.String()
}

// encodeORTE submits the task to a persistent Open RTE distributed virtual
// machine through orterun.
func encodeORTE(task api.Task, slots api.SlotAllocation) (Result, error) {
	return Result{Command: orteCommand(task, slots) + " " + taskCommand(task.Description)}, nil
}

// encodeORTELib splits the launcher from the payload: an embedding runtime
// submits the bare task command through the ORTE library API and only needs
// the orterun invocation as a wrapper.
func encodeORTELib(task api.Task, slots api.SlotAllocation) (Result, error) {
	return Result{
		Command: taskCommand(task.Description),
		Wrapper: orteCommand(task, slots),
	}, nil
}

// encodePRTE targets the PMIx reference runtime, the successor of ORTE. Same
// shape, different spellings, and ranks bind to hardware threads.
func encodePRTE(task api.Task, slots api.SlotAllocation) (Result, error) {
	return Result{Command: prteCommand(task, slots) + " " + taskCommand(task.Description)}, nil
}
