package launch

import (
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

func TestTaskCommandQuoting(t *testing.T) {
	cases := []struct {
		name string
		desc api.TaskDescription
		want string
	}{
		{
			"plain arguments",
			api.TaskDescription{Executable: "/bin/sleep", Arguments: []string{"10"}},
			`/bin/sleep "10"`,
		},
		{
			"whitespace survives quoting",
			api.TaskDescription{Executable: "/bin/echo", Arguments: []string{"hello world"}},
			`/bin/echo "hello world"`,
		},
		{
			"empty arguments are dropped",
			api.TaskDescription{Executable: "/bin/echo", Arguments: []string{"", "a", "", "b"}},
			`/bin/echo "a" "b"`,
		},
		{
			"embedded double quotes are escaped",
			api.TaskDescription{Executable: "/bin/echo", Arguments: []string{`say "hi"`}},
			`/bin/echo "say \"hi\""`,
		},
		{
			"single-quoted arguments pass through",
			api.TaskDescription{Executable: "/bin/sh", Arguments: []string{"-c", "'echo $HOME'"}},
			`/bin/sh "-c" 'echo $HOME'`,
		},
		{
			"no arguments",
			api.TaskDescription{Executable: "/bin/date"},
			"/bin/date",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := taskCommand(c.desc)
			if got != c.want {
				t.Errorf("Expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestRankHosts(t *testing.T) {
	slots := api.SlotAllocation{
		Nodes: []api.NodeAllocation{
			{Name: "a", CoreMap: [][]int{{0, 1}, {2, 3}}},
			{Name: "b", CoreMap: [][]int{{0, 1}}},
		},
	}

	hosts := rankHosts(slots)
	if len(hosts) != 3 {
		t.Fatalf("expected 3 rank hosts, got %d", len(hosts))
	}
	if hosts[0] != "a" || hosts[1] != "a" || hosts[2] != "b" {
		t.Errorf("unexpected rank host order: %v", hosts)
	}
}

func TestThreadDepth(t *testing.T) {
	if got := threadDepth(api.TaskDescription{CPUThreads: 0}); got != 1 {
		t.Errorf("Expected depth 1 for zero threads, got %d", got)
	}
	if got := threadDepth(api.TaskDescription{CPUThreads: 4}); got != 4 {
		t.Errorf("Expected depth 4, got %d", got)
	}
}

func TestRankOffset(t *testing.T) {
	// Group offsets are 8/2=4, 0/2+16=16 and 4/2+16=18; the minimum wins.
	slots := api.SlotAllocation{
		CoresPerNode: 16,
		Nodes: []api.NodeAllocation{
			{Name: "a", CoreMap: [][]int{{8, 9}}},
			{Name: "b", CoreMap: [][]int{{0, 1}, {4, 5}}},
		},
	}
	if got := rankOffset(slots); got != 4 {
		t.Errorf("Expected offset 4, got %d", got)
	}
}
