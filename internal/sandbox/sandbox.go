// Package sandbox lays out the per-task working directories: one directory
// per task uid holding the launch script, launcher side files and the
// captured output streams.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/pkg/api"
)

// ScriptName is the launch script written into every task sandbox.
const ScriptName = "launch_script.sh"

// Sandbox roots all task directories under one path.
type Sandbox struct {
	Root string
}

// TaskDir creates (if needed) and returns the sandbox directory for a task.
func (s Sandbox) TaskDir(uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("task uid is required")
	}
	dir := filepath.Join(s.Root, uid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create task sandbox: %w", err)
	}
	return dir, nil
}

// WriteSideFiles persists the launcher side files into the sandbox. They
// must be in place before the launch command references them.
func WriteSideFiles(dir string, files []launch.SideFile) error {
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Content, 0644); err != nil {
			return fmt.Errorf("write side file %s: %w", f.Name, err)
		}
	}
	return nil
}

// WriteLaunchScript writes <dir>/launch_script.sh that:
// - logs in to the node environment (bash -l)
// - moves into the task sandbox
// - runs pre-exec lines, exports the task environment
// - runs the compiled command, preserving its exit status across post-exec
// Content is deterministic for identical inputs; the task environment is
// exported in sorted key order. The session id export is skipped when the
// caller has none.
func WriteLaunchScript(dir string, task api.Task, res launch.Result, session string) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/bash -l\n\n")
	fmt.Fprintf(&b, "# task %s\n\n", task.UID)
	fmt.Fprintf(&b, "cd \"%s\"\n", dir)

	d := task.Description
	if len(d.PreExec) > 0 {
		b.WriteString("\n# pre-exec\n")
		for _, line := range d.PreExec {
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "export RP_TASK_ID=\"%s\"\n", task.UID)
	if session != "" {
		fmt.Fprintf(&b, "export RP_SESSION_ID=\"%s\"\n", session)
	}
	for _, key := range sortedKeys(d.Environment) {
		fmt.Fprintf(&b, "export %s=\"%s\"\n", key, d.Environment[key])
	}

	b.WriteString("\n# launch\n")
	b.WriteString(res.Command + "\n")
	b.WriteString("RET=$?\n")

	if len(d.PostExec) > 0 {
		b.WriteString("\n# post-exec\n")
		for _, line := range d.PostExec {
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\nexit $RET\n")

	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		return "", fmt.Errorf("write launch script: %w", err)
	}
	return path, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
