// Package launch compiles task placements into concrete launcher command
// lines. Given a task description, a slot allocation and a launch method it
// produces the command to execute, an optional wrapper prefix and any side
// files the launcher reads from the task sandbox.
//
// Compilation is pure: encoders never mutate their inputs, hold no shared
// state and are safe to call concurrently. Identical inputs always produce
// byte-identical output.
package launch

import (
	"fmt"
	"strings"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// Method selects one launch mechanism. The set is closed: Encode switches
// exhaustively over these values and rejects anything else.
type Method int

const (
	Fork Method = iota
	SSH
	RSH
	MPIRun
	MPIExec
	APRun
	CCMRun
	DPlace
	POE
	IBRun
	JSRun
	ORTE
	ORTELib
	PRTE
	Flux
	Spark
	Yarn
	Funcs
)

var methodNames = [...]string{
	Fork:    "fork",
	SSH:     "ssh",
	RSH:     "rsh",
	MPIRun:  "mpirun",
	MPIExec: "mpiexec",
	APRun:   "aprun",
	CCMRun:  "ccmrun",
	DPlace:  "dplace",
	POE:     "poe",
	IBRun:   "ibrun",
	JSRun:   "jsrun",
	ORTE:    "orte",
	ORTELib: "orte_lib",
	PRTE:    "prte",
	Flux:    "flux",
	Spark:   "spark",
	Yarn:    "yarn",
	Funcs:   "funcs",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod resolves a case-insensitive method name.
func ParseMethod(name string) (Method, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, n := range methodNames {
		if n == want {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

// Methods lists every launch method in declaration order.
func Methods() []Method {
	out := make([]Method, len(methodNames))
	for i := range methodNames {
		out[i] = Method(i)
	}
	return out
}

// SideFile is an auxiliary file a launch command reads from the sandbox.
type SideFile struct {
	Name    string
	Content []byte
}

// Result is one compiled launch. Command runs inside the task sandbox;
// when Wrapper is set the caller prefixes it to the command (or to the
// launch script path) before execution.
type Result struct {
	Command   string
	Wrapper   string
	SideFiles []SideFile
}

// Encode compiles the launch for one task placement. The allocation is
// validated first; nothing is emitted for inputs that cannot launch.
func Encode(m Method, task api.Task, slots api.SlotAllocation) (Result, error) {
	if err := api.ValidateSlots(task, slots); err != nil {
		return Result{}, err
	}

	switch m {
	case Fork, Funcs:
		// Function tasks are dispatched by an in-process executor; the
		// compiled command is the bare task command for both.
		return encodeFork(task)
	case SSH:
		return encodeShell("ssh -o StrictHostKeyChecking=no", task, slots)
	case RSH:
		return encodeShell("rsh", task, slots)
	case MPIRun:
		return encodeMPIRun(task, slots)
	case MPIExec:
		return encodeMPIExec(task, slots)
	case APRun:
		return encodeAPRun(task, slots)
	case CCMRun:
		return encodeCCMRun(task)
	case DPlace:
		return encodeDPlace(task, slots)
	case POE:
		return encodePOE(task, slots)
	case IBRun:
		return encodeIBRun(task, slots)
	case JSRun:
		return encodeJSRun(task, slots)
	case ORTE:
		return encodeORTE(task, slots)
	case ORTELib:
		return encodeORTELib(task, slots)
	case PRTE:
		return encodePRTE(task, slots)
	case Flux:
		return encodeFlux(task, slots)
	case Spark, Yarn:
		return Result{}, fmt.Errorf("%s cannot launch executable tasks: %w", m, ErrMethodNotApplicable)
	default:
		return Result{}, fmt.Errorf("%w: method(%d)", ErrUnsupportedMethod, int(m))
	}
}
