package api

import "fmt"

// ValidationError reports an input that cannot be turned into a launch.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidateSlots checks that an allocation matches the process counts of
// the task description. Callers must not emit any launch artifact when it
// fails.
func ValidateSlots(task Task, slots SlotAllocation) error {
	d := task.Description
	if d.Executable == "" {
		return &ValidationError{Field: "description.executable", Value: d.Executable, Message: "executable is required"}
	}
	if d.CPUProcesses < 1 {
		return &ValidationError{Field: "description.cpu_processes", Value: d.CPUProcesses, Message: "at least one process is required"}
	}
	if len(slots.Nodes) == 0 {
		return &ValidationError{Field: "slots.nodes", Value: len(slots.Nodes), Message: "allocation holds no nodes"}
	}

	cores := 0
	gpus := 0
	for i, node := range slots.Nodes {
		if node.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("slots.nodes[%d].name", i),
				Value:   node.Name,
				Message: "node name is required",
			}
		}
		for j, group := range node.CoreMap {
			if len(group) == 0 {
				return &ValidationError{
					Field:   fmt.Sprintf("slots.nodes[%d].core_map[%d]", i, j),
					Value:   group,
					Message: "process slot holds no cores",
				}
			}
		}
		cores += len(node.CoreMap)
		gpus += len(node.GPUMap)
	}

	if cores != d.CPUProcesses {
		return &ValidationError{
			Field:   "slots.nodes.core_map",
			Value:   cores,
			Message: fmt.Sprintf("allocation provides %d process slots, task wants %d", cores, d.CPUProcesses),
		}
	}
	if gpus != d.GPUProcesses {
		return &ValidationError{
			Field:   "slots.nodes.gpu_map",
			Value:   gpus,
			Message: fmt.Sprintf("allocation provides %d gpu slots, task wants %d", gpus, d.GPUProcesses),
		}
	}
	return nil
}
