package launch

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// RankBinding pins one rank to a host with explicit cpu and gpu index sets.
type RankBinding struct {
	Host string
	CPUs []int
	GPUs []int
}

// rankBindings flattens an allocation into global rank order: nodes in slot
// order, core groups in map order within each node. The i-th gpu group of a
// node is paired with its i-th core group; ranks past the last gpu group run
// without one.
func rankBindings(slots api.SlotAllocation) []RankBinding {
	var binds []RankBinding
	for _, node := range slots.Nodes {
		for i, group := range node.CoreMap {
			b := RankBinding{Host: node.UID, CPUs: group}
			if i < len(node.GPUMap) {
				b.GPUs = node.GPUMap[i]
			}
			binds = append(binds, b)
		}
	}
	return binds
}

// FormatResourceLayout renders rank bindings in the explicit resource file
// grammar jsrun consumes via --erf_input. The byte layout is load-bearing:
// LSF's parser is strict about the separators and the single space after
// each brace.
func FormatResourceLayout(binds []RankBinding) []byte {
	var buf bytes.Buffer
	buf.WriteString("cpu_index_using: physical\n")
	for rank, b := range binds {
		fmt.Fprintf(&buf, "rank: %d: { host: %s; cpu: {%s}", rank, b.Host, joinInts(b.CPUs))
		if len(b.GPUs) > 0 {
			fmt.Fprintf(&buf, "; gpu: {%s}", joinInts(b.GPUs))
		}
		buf.WriteString("}\n")
	}
	return buf.Bytes()
}

func joinInts(indices []int) string {
	parts := make([]string, len(indices))
	for i, n := range indices {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
