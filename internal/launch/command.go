package launch

import (
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// quoteArg renders one argument for a POSIX shell. Embedded double quotes
// are escaped and the argument is wrapped in double quotes; arguments
// already wrapped in single quotes pass through untouched.
func quoteArg(arg string) string {
	if len(arg) >= 2 && strings.HasPrefix(arg, "'") && strings.HasSuffix(arg, "'") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// taskCommand joins the executable with its individually quoted arguments.
// The executable itself stays bare; empty arguments are dropped.
func taskCommand(d api.TaskDescription) string {
	parts := make([]string, 0, len(d.Arguments)+1)
	parts = append(parts, d.Executable)
	for _, arg := range d.Arguments {
		if arg == "" {
			continue
		}
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

// rankHosts lists one host entry per process slot, in node order.
func rankHosts(slots api.SlotAllocation) []string {
	hosts := make([]string, 0, len(slots.Nodes))
	for _, node := range slots.Nodes {
		for range node.CoreMap {
			hosts = append(hosts, node.Name)
		}
	}
	return hosts
}

// nodeNames lists each allocated node once, in node order.
func nodeNames(slots api.SlotAllocation) []string {
	names := make([]string, 0, len(slots.Nodes))
	for _, node := range slots.Nodes {
		names = append(names, node.Name)
	}
	return names
}

// threadDepth is the per-process thread count, never below one.
func threadDepth(d api.TaskDescription) int {
	if d.CPUThreads < 1 {
		return 1
	}
	return d.CPUThreads
}
