// Package agent runs on compute nodes and turns spawn requests into
// compiled, executed launches. The controller talks to it over a small
// versioned HTTP API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/internal/sandbox"
	"github.com/pilotrun/pilotrun/internal/telemetry"
)

type Server struct {
	Version     string
	SandboxRoot string
	srv         *http.Server
}

// sandboxRoot falls back to a per-user temp tree when unconfigured.
func (s *Server) sandboxRoot() string {
	if s.SandboxRoot != "" {
		return s.SandboxRoot
	}
	return filepath.Join(os.TempDir(), "pilotrun")
}

// authorized checks the optional bearer token. With no token configured
// every request passes.
func authorized(r *http.Request) bool {
	tok := os.Getenv("PILOTRUN_AGENT_TOKEN")
	if tok == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+tok || r.Header.Get("X-Auth-Token") == tok
}

// Routes for the server
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/v0/health", s.handleHealth)
	mux.HandleFunc("/v0/spawn", s.handleSpawn)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_ = r.Body.Close()

	telemetry.CounterGlobal("pilotrun_agent_health_checks", 1, map[string]string{
		"component": "agent",
		"endpoint":  "health",
	})

	h := HealthResponse{Time: time.Now(), Host: r.Host, Version: s.Version}
	_ = json.NewEncoder(w).Encode(h)

	telemetry.TimerGlobal("pilotrun_agent_request_duration", time.Since(start), map[string]string{
		"component": "agent",
		"endpoint":  "health",
		"status":    "200",
	})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestStart := time.Now()
	defer r.Body.Close()

	var req SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		telemetry.CounterGlobal("pilotrun_agent_spawn_errors", 1, map[string]string{
			"component": "agent",
			"endpoint":  "spawn",
			"error":     "decode_request",
		})
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	telemetry.CounterGlobal("pilotrun_agent_spawn_requests", 1, map[string]string{
		"component": "agent",
		"endpoint":  "spawn",
		"method":    req.Method,
	})

	method, err := launch.ParseMethod(req.Method)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := launch.Encode(method, req.Task, req.Slots)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, launch.ErrMethodNotApplicable) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	sb := sandbox.Sandbox{Root: s.sandboxRoot()}
	dir, err := sb.TaskDir(req.Task.UID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := sandbox.WriteSideFiles(dir, res.SideFiles); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	script, err := sandbox.WriteLaunchScript(dir, req.Task, res, req.Session)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var cmd *exec.Cmd
	if res.Wrapper != "" {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", res.Wrapper+" "+script)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/bash", script)
	}
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	scope := telemetry.NewTimerScope("pilotrun_agent_spawn_duration", map[string]string{
		"component": "agent",
		"endpoint":  "spawn",
		"method":    req.Method,
	})
	runErr := cmd.Run()
	execDuration := scope.End()

	exitCode := 0
	if runErr != nil {
		var exit *exec.ExitError
		if errors.As(runErr, &exit) {
			exitCode = exit.ExitCode()
		} else {
			exitCode = 1
			fmt.Fprintf(&stderr, "run launch script: %v\n", runErr)
		}
	}

	labels := map[string]string{
		"component": "agent",
		"endpoint":  "spawn",
		"method":    req.Method,
	}
	telemetry.TimerGlobal("pilotrun_agent_request_duration", time.Since(requestStart), labels)
	telemetry.HistogramGlobal("pilotrun_agent_spawn_output_size", float64(stdout.Len()+stderr.Len()), labels)
	if exitCode == 0 {
		telemetry.CounterGlobal("pilotrun_agent_spawns_successful", 1, labels)
	} else {
		telemetry.CounterGlobal("pilotrun_agent_spawns_failed", 1, labels)
	}

	resp := SpawnResponse{
		UID:        req.Task.UID,
		RunID:      uuid.NewString(),
		Method:     req.Method,
		Command:    res.Command,
		Wrapper:    res.Wrapper,
		Sandbox:    dir,
		ExitCode:   exitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: execDuration.Milliseconds(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Handler returns the agent's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return mux
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	return s.srv.ListenAndServe()
}

// Shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return fmt.Errorf("server not running")
	}
	return s.srv.Shutdown(ctx)
}
