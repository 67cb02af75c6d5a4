// Package sites carries the compiled-in resource site records. A site picks
// the launch method for a machine and the node geometry used when slots are
// synthesized locally instead of handed over by a scheduler.
package sites

import (
	"fmt"
	"sort"

	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/pkg/api"
)

// Site describes one target machine.
type Site struct {
	Key           string
	Description   string
	DefaultMethod launch.Method
	CoresPerNode  int
	GPUsPerNode   int
	LFSPerNode    api.LFS
	Queue         string
}

type Registry struct {
	sites map[string]Site
}

func NewRegistry() *Registry {
	return &Registry{sites: map[string]Site{}}
}

func (r *Registry) Register(s Site) {
	r.sites[s.Key] = s
}

func (r *Registry) Get(key string) (Site, error) {
	s, ok := r.sites[key]
	if !ok {
		return Site{}, fmt.Errorf("site not registered: %s", key)
	}
	return s, nil
}

// List returns all registered sites sorted by key.
func (r *Registry) List() []Site {
	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Builtin returns a registry seeded with the machines pilotrun knows out of
// the box. Geometry values are per compute node.
func Builtin() *Registry {
	r := NewRegistry()
	for _, s := range []Site{
		{
			Key:           "localhost",
			Description:   "local workstation, no scheduler",
			DefaultMethod: launch.Fork,
			CoresPerNode:  8,
			LFSPerNode:    api.LFS{Path: "/tmp"},
		},
		{
			Key:           "cluster.generic",
			Description:   "generic MPI cluster",
			DefaultMethod: launch.MPIRun,
			CoresPerNode:  16,
			LFSPerNode:    api.LFS{Path: "/tmp"},
			Queue:         "batch",
		},
		{
			Key:           "ornl.summit",
			Description:   "OLCF Summit (IBM AC922, LSF)",
			DefaultMethod: launch.JSRun,
			CoresPerNode:  42,
			GPUsPerNode:   6,
			LFSPerNode:    api.LFS{Size: 1600000, Path: "/mnt/bb"},
			Queue:         "batch",
		},
		{
			Key:           "ornl.titan",
			Description:   "OLCF Titan (Cray XK7, ALPS)",
			DefaultMethod: launch.APRun,
			CoresPerNode:  16,
			GPUsPerNode:   1,
			LFSPerNode:    api.LFS{Path: "/tmp"},
			Queue:         "batch",
		},
		{
			Key:           "tacc.frontera",
			Description:   "TACC Frontera (SLURM via ibrun)",
			DefaultMethod: launch.IBRun,
			CoresPerNode:  56,
			LFSPerNode:    api.LFS{Size: 144000, Path: "/tmp"},
			Queue:         "normal",
		},
		{
			Key:           "anl.theta",
			Description:   "ALCF Theta (Cray XC40, ALPS)",
			DefaultMethod: launch.APRun,
			CoresPerNode:  64,
			LFSPerNode:    api.LFS{Size: 128000, Path: "/local/scratch"},
			Queue:         "default",
		},
	} {
		r.Register(s)
	}
	return r
}
