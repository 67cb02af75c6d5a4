package agent

import (
	"time"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// HealthResponse reports agent liveness.
type HealthResponse struct {
	Time    time.Time `json:"time"`
	Host    string    `json:"host"`
	Version string    `json:"version"`
}

// SpawnRequest asks the agent to compile and run one task placement on its
// node. The method travels by name so the wire format stays stable across
// method-set changes.
type SpawnRequest struct {
	Task           api.Task           `json:"task"`
	Slots          api.SlotAllocation `json:"slots"`
	Method         string             `json:"method"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
	Session        string             `json:"session,omitempty"`
}

// SpawnResponse reports the compiled launch and its outcome.
type SpawnResponse struct {
	UID        string `json:"uid"`
	RunID      string `json:"run_id"`
	Method     string `json:"method"`
	Command    string `json:"command"`
	Wrapper    string `json:"wrapper,omitempty"`
	Sandbox    string `json:"sandbox"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
}
