package api

// v0 contains the wire types shared by the CLI, the engine and the node
// agent. Field names follow the task fixture schema.

type ProcessType string

const (
	// ProcessTypeMPI marks processes that participate in an MPI world.
	ProcessTypeMPI ProcessType = "MPI"
)

// TaskDescription says what to run and how many processes, threads and
// GPUs the workload wants. Process types select between single-process
// and MPI command shapes.
type TaskDescription struct {
	Executable     string            `json:"executable" yaml:"executable"`
	Arguments      []string          `json:"arguments" yaml:"arguments"`
	CPUProcesses   int               `json:"cpu_processes" yaml:"cpu_processes"`
	CPUProcessType ProcessType       `json:"cpu_process_type" yaml:"cpu_process_type"`
	CPUThreads     int               `json:"cpu_threads" yaml:"cpu_threads"`
	GPUProcesses   int               `json:"gpu_processes" yaml:"gpu_processes"`
	GPUProcessType ProcessType       `json:"gpu_process_type" yaml:"gpu_process_type"`
	GPUThreadType  ProcessType       `json:"gpu_thread_type" yaml:"gpu_thread_type"`
	Environment    map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	PreExec        []string          `json:"pre_exec,omitempty" yaml:"pre_exec,omitempty"`
	PostExec       []string          `json:"post_exec,omitempty" yaml:"post_exec,omitempty"`
	Stage          []StageDirective  `json:"stage,omitempty" yaml:"stage,omitempty"`
}

// Task pairs a stable uid with its description. The uid names the task
// sandbox and any per-task side files.
type Task struct {
	UID         string          `json:"uid" yaml:"uid"`
	Description TaskDescription `json:"description" yaml:"description"`
}

// StageDirective moves one input into the task sandbox before launch.
// An empty target places the source basename in the sandbox root.
type StageDirective struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
}

// LFS describes node-local scratch space.
type LFS struct {
	Size int64  `json:"size" yaml:"size"`
	Path string `json:"path" yaml:"path"`
}

// MethodInfo carries launch-method state shared by all ranks, such as the
// URI of a running DVM. Opaque to everything except the encoders.
type MethodInfo struct {
	DVMURI string `json:"dvm_uri,omitempty" yaml:"dvm_uri,omitempty"`
}

// NodeAllocation is one node's share of an allocation. CoreMap holds one
// group of core indices per process placed on the node; GPUMap does the
// same for GPU processes.
type NodeAllocation struct {
	Name    string  `json:"name" yaml:"name"`
	UID     string  `json:"uid" yaml:"uid"`
	CoreMap [][]int `json:"core_map" yaml:"core_map"`
	GPUMap  [][]int `json:"gpu_map" yaml:"gpu_map"`
	LFS     LFS     `json:"lfs" yaml:"lfs"`
}

// SlotAllocation is the scheduler's placement decision for one task.
type SlotAllocation struct {
	CoresPerNode int              `json:"cores_per_node" yaml:"cores_per_node"`
	GPUsPerNode  int              `json:"gpus_per_node" yaml:"gpus_per_node"`
	LFSPerNode   LFS              `json:"lfs_per_node" yaml:"lfs_per_node"`
	LMInfo       MethodInfo       `json:"lm_info" yaml:"lm_info"`
	Nodes        []NodeAllocation `json:"nodes" yaml:"nodes"`
}

type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskStaging TaskState = "staging"
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)
