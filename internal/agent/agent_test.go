package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

func spawnFixture() SpawnRequest {
	return SpawnRequest{
		Task: api.Task{
			UID: "task.000042",
			Description: api.TaskDescription{
				Executable:   "/bin/echo",
				Arguments:    []string{"hello"},
				CPUProcesses: 1,
				CPUThreads:   1,
			},
		},
		Slots: api.SlotAllocation{
			CoresPerNode: 4,
			Nodes: []api.NodeAllocation{
				{Name: "localhost", UID: "1", CoreMap: [][]int{{0}}, GPUMap: [][]int{}},
			},
		},
		Method: "fork",
	}
}

func postSpawn(t *testing.T, srv *Server, req SpawnRequest) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	srv.routes(mux)
	body, _ := json.Marshal(req)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v0/spawn", bytes.NewReader(body)))
	return rr
}

// TestHealth tests the health endpoint
func TestHealth(t *testing.T) {
	srv := &Server{Version: "test"}
	mux := http.NewServeMux()
	srv.routes(mux)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0/health", nil)
	mux.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Version != "test" {
		t.Fatalf("version mismatch")
	}
}

// TestSpawn tests the spawn endpoint end to end
func TestSpawn(t *testing.T) {
	root := t.TempDir()
	srv := &Server{Version: "test", SandboxRoot: root}

	rr := postSpawn(t, srv, spawnFixture())
	if rr.Code != 200 {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var resp SpawnResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UID != "task.000042" {
		t.Errorf("Expected uid task.000042, got %s", resp.UID)
	}
	if resp.RunID == "" {
		t.Error("Expected a run id")
	}
	if resp.ExitCode != 0 {
		t.Errorf("Expected exit 0, got %d (stderr: %s)", resp.ExitCode, resp.Stderr)
	}
	if resp.Command != `/bin/echo "hello"` {
		t.Errorf("Expected compiled command, got %q", resp.Command)
	}
	if !strings.Contains(resp.Stdout, "hello") {
		t.Errorf("Expected stdout to contain hello, got %q", resp.Stdout)
	}

	script := filepath.Join(root, "task.000042", "launch_script.sh")
	if _, err := os.Stat(script); err != nil {
		t.Errorf("Expected launch script at %s: %v", script, err)
	}
}

// TestSpawnAuth tests token enforcement
func TestSpawnAuth(t *testing.T) {
	t.Setenv("PILOTRUN_AGENT_TOKEN", "sekrit")

	srv := &Server{Version: "test", SandboxRoot: t.TempDir()}
	mux := http.NewServeMux()
	srv.routes(mux)

	body, _ := json.Marshal(spawnFixture())

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v0/spawn", bytes.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v0/spawn", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	mux.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

// TestSpawnRejectsDataFramework tests that spark placements are refused
func TestSpawnRejectsDataFramework(t *testing.T) {
	srv := &Server{Version: "test", SandboxRoot: t.TempDir()}
	req := spawnFixture()
	req.Method = "spark"

	rr := postSpawn(t, srv, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not applicable") {
		t.Errorf("Expected not-applicable error, got %q", rr.Body.String())
	}
}

// TestSpawnRejectsUnknownMethod tests method validation
func TestSpawnRejectsUnknownMethod(t *testing.T) {
	srv := &Server{Version: "test", SandboxRoot: t.TempDir()}
	req := spawnFixture()
	req.Method = "slurm"

	rr := postSpawn(t, srv, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

// TestSpawnRejectsMalformedSlots tests that validation runs before anything
// touches the sandbox
func TestSpawnRejectsMalformedSlots(t *testing.T) {
	root := t.TempDir()
	srv := &Server{Version: "test", SandboxRoot: root}
	req := spawnFixture()
	req.Slots.Nodes[0].CoreMap = [][]int{} // no slots for the single process

	rr := postSpawn(t, srv, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(root, "task.000042")); !os.IsNotExist(err) {
		t.Error("Expected no sandbox for a rejected placement")
	}
}
