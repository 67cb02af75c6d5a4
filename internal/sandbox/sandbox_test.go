package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/pkg/api"
)

func TestTaskDir(t *testing.T) {
	s := Sandbox{Root: t.TempDir()}

	dir, err := s.TaskDir("task.000000")
	if err != nil {
		t.Fatalf("TaskDir failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat sandbox dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected a directory")
	}

	// Creating it twice must be fine.
	if _, err := s.TaskDir("task.000000"); err != nil {
		t.Errorf("second TaskDir failed: %v", err)
	}

	if _, err := s.TaskDir(""); err == nil {
		t.Error("Expected error for empty uid")
	}
}

func TestWriteSideFiles(t *testing.T) {
	dir := t.TempDir()
	files := []launch.SideFile{
		{Name: "rs_layout_cu_task.000000", Content: []byte("cpu_index_using: physical\n")},
	}

	if err := WriteSideFiles(dir, files); err != nil {
		t.Fatalf("WriteSideFiles failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, files[0].Name))
	if err != nil {
		t.Fatalf("read side file: %v", err)
	}
	if string(raw) != string(files[0].Content) {
		t.Errorf("side file content mismatch")
	}
}

func TestWriteLaunchScript(t *testing.T) {
	dir := t.TempDir()
	task := api.Task{
		UID: "task.000042",
		Description: api.TaskDescription{
			Executable:  "/bin/echo",
			PreExec:     []string{"module load gcc"},
			PostExec:    []string{"touch done.marker"},
			Environment: map[string]string{"B_VAR": "2", "A_VAR": "1"},
		},
	}
	res := launch.Result{Command: `/bin/echo "hi"`}

	path, err := WriteLaunchScript(dir, task, res, "session.0001")
	if err != nil {
		t.Fatalf("WriteLaunchScript failed: %v", err)
	}
	if filepath.Base(path) != ScriptName {
		t.Errorf("Expected %s, got %s", ScriptName, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Error("launch script is not executable")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	content := string(raw)

	if !strings.HasPrefix(content, "#!/bin/bash -l\n") {
		t.Error("missing login-shell shebang")
	}
	for _, want := range []string{
		"cd \"" + dir + "\"",
		"module load gcc",
		"export RP_TASK_ID=\"task.000042\"",
		"export RP_SESSION_ID=\"session.0001\"",
		`/bin/echo "hi"`,
		"RET=$?",
		"touch done.marker",
		"exit $RET",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("script is missing %q:\n%s", want, content)
		}
	}

	// Environment exports are sorted for deterministic output.
	if strings.Index(content, "A_VAR") > strings.Index(content, "B_VAR") {
		t.Error("environment exports are not sorted")
	}

	again, err := WriteLaunchScript(dir, task, res, "session.0001")
	if err != nil {
		t.Fatalf("second WriteLaunchScript failed: %v", err)
	}
	raw2, _ := os.ReadFile(again)
	if string(raw2) != content {
		t.Error("launch script is not deterministic")
	}
}

func TestWriteLaunchScriptNoSession(t *testing.T) {
	dir := t.TempDir()
	task := api.Task{UID: "task.000001", Description: api.TaskDescription{Executable: "/bin/true"}}

	path, err := WriteLaunchScript(dir, task, launch.Result{Command: "/bin/true"}, "")
	if err != nil {
		t.Fatalf("WriteLaunchScript failed: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "RP_SESSION_ID") {
		t.Error("session export present without a session")
	}
}
