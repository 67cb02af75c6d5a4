package core

import (
	"fmt"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// chunkCores splits a flat range of core indices into per-process groups of
// the given width. Indices start at zero and are contiguous, which is what
// direct local submission gets without an external scheduler.
func chunkCores(procs, width int) [][]int {
	if width < 1 {
		width = 1
	}
	groups := make([][]int, 0, procs)
	for p := 0; p < procs; p++ {
		group := make([]int, width)
		for t := 0; t < width; t++ {
			group[t] = p*width + t
		}
		groups = append(groups, group)
	}
	return groups
}

// BuildSlots synthesizes a single-node allocation for direct submission.
// Core groups are chunked from a flat range; gpu processes get one device
// each. Errors when the node geometry cannot fit the request.
func BuildSlots(nodeName, nodeUID string, coresPerNode, gpusPerNode, procs, threads, gpuProcs int, lfs api.LFS) (api.SlotAllocation, error) {
	if procs < 1 {
		return api.SlotAllocation{}, fmt.Errorf("at least one process is required")
	}
	if threads < 1 {
		threads = 1
	}
	if need := procs * threads; need > coresPerNode {
		return api.SlotAllocation{}, fmt.Errorf("node %s has %d cores, task wants %d", nodeName, coresPerNode, need)
	}
	if gpuProcs > gpusPerNode {
		return api.SlotAllocation{}, fmt.Errorf("node %s has %d gpus, task wants %d", nodeName, gpusPerNode, gpuProcs)
	}

	gpuMap := make([][]int, 0, gpuProcs)
	for g := 0; g < gpuProcs; g++ {
		gpuMap = append(gpuMap, []int{g})
	}

	return api.SlotAllocation{
		CoresPerNode: coresPerNode,
		GPUsPerNode:  gpusPerNode,
		LFSPerNode:   lfs,
		Nodes: []api.NodeAllocation{{
			Name:    nodeName,
			UID:     nodeUID,
			CoreMap: chunkCores(procs, threads),
			GPUMap:  gpuMap,
			LFS:     lfs,
		}},
	}, nil
}
