package launch

import (
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

func TestRankBindingsGPUPairing(t *testing.T) {
	slots := api.SlotAllocation{
		Nodes: []api.NodeAllocation{
			{
				Name:    "a",
				UID:     "1",
				CoreMap: [][]int{{0, 1}, {2, 3}, {4, 5}},
				GPUMap:  [][]int{{0}, {1}},
			},
		},
	}

	binds := rankBindings(slots)
	if len(binds) != 3 {
		t.Fatalf("expected 3 ranks, got %d", len(binds))
	}
	if len(binds[0].GPUs) != 1 || binds[0].GPUs[0] != 0 {
		t.Errorf("rank 0: expected gpu {0}, got %v", binds[0].GPUs)
	}
	if len(binds[1].GPUs) != 1 || binds[1].GPUs[0] != 1 {
		t.Errorf("rank 1: expected gpu {1}, got %v", binds[1].GPUs)
	}
	if len(binds[2].GPUs) != 0 {
		t.Errorf("rank 2: expected no gpus, got %v", binds[2].GPUs)
	}
}

func TestFormatResourceLayout(t *testing.T) {
	binds := []RankBinding{
		{Host: "1", CPUs: []int{0, 1}, GPUs: []int{0}},
		{Host: "1", CPUs: []int{2, 3}, GPUs: []int{1}},
	}

	want := "cpu_index_using: physical\n" +
		"rank: 0: { host: 1; cpu: {0,1}; gpu: {0}}\n" +
		"rank: 1: { host: 1; cpu: {2,3}; gpu: {1}}\n"

	got := string(FormatResourceLayout(binds))
	if got != want {
		t.Errorf("layout mismatch\n got: %q\nwant: %q", got, want)
	}
}

// A rank whose paired gpu group is empty gets no gpu clause at all.
func TestFormatResourceLayoutEmptyGPUGroup(t *testing.T) {
	binds := []RankBinding{{Host: "7", CPUs: []int{0}, GPUs: []int{}}}

	want := "cpu_index_using: physical\nrank: 0: { host: 7; cpu: {0}}\n"
	if got := string(FormatResourceLayout(binds)); got != want {
		t.Errorf("layout mismatch\n got: %q\nwant: %q", got, want)
	}
}
