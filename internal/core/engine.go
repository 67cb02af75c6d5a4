package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/pilotrun/pilotrun/internal/agent"
	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/internal/sandbox"
	"github.com/pilotrun/pilotrun/internal/stage"
	"github.com/pilotrun/pilotrun/internal/telemetry"
	"github.com/pilotrun/pilotrun/pkg/api"
)

// compileCacheEntries bounds the per-engine compile cache.
const compileCacheEntries = 512

// Engine ties the launch compiler to the ledger, the sandbox tree and the
// node agents. One engine serves one session; every launch script it writes
// exports the session id.
type Engine struct {
	cfg     Config
	store   *Store
	cache   *lru.Cache[string, launch.Result]
	sandbox sandbox.Sandbox
	session string
	perf    *telemetry.PerformanceMonitor
}

// SpawnResult reports one finished run, local or remote. Stdout and stderr
// land in the local sandbox for both.
type SpawnResult struct {
	UID        string
	RunID      string
	Method     string
	Command    string
	Sandbox    string
	ExitCode   int
	StdoutPath string
	StderrPath string
	Duration   time.Duration
}

// NewEngine opens the ledger and prepares the sandbox root.
func NewEngine(cfg Config) (*Engine, error) {
	store, err := NewStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, launch.Result](compileCacheEntries)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		sandbox: sandbox.Sandbox{Root: cfg.SandboxRoot},
		session: uuid.NewString(),
		perf:    telemetry.NewPerformanceMonitor(telemetry.GetGlobal(), cfg.Telemetry.Enabled),
	}, nil
}

// Session returns this engine's session id.
func (e *Engine) Session() string {
	return e.session
}

// Close releases the ledger and stops metric collection.
func (e *Engine) Close() error {
	e.perf.Shutdown()
	return e.store.Close()
}

// CompileTask compiles one task placement and records it as a pending run.
// A task's placement is fixed for its lifetime, so uid plus method
// identifies the compiled launch and repeat compilations hit the cache.
func (e *Engine) CompileTask(ctx context.Context, task api.Task, slots api.SlotAllocation, method launch.Method) (LaunchRecord, launch.Result, error) {
	start := time.Now()
	key := task.UID + "\x00" + method.String()

	res, hit := e.cache.Get(key)
	if !hit {
		var err error
		res, err = launch.Encode(method, task, slots)
		if err != nil {
			return LaunchRecord{}, launch.Result{}, err
		}
		e.cache.Add(key, res)
	}
	e.perf.RecordCompileMetrics(method.String(), time.Since(start), hit)
	if n := len(res.SideFiles); n > 0 {
		total := 0
		for _, f := range res.SideFiles {
			total += len(f.Content)
		}
		e.perf.RecordSideFileMetrics(method.String(), n, total)
	}

	rec := LaunchRecord{
		UID:     task.UID,
		RunID:   uuid.NewString(),
		Method:  method.String(),
		Command: res.Command,
		Wrapper: res.Wrapper,
		State:   api.TaskPending,
	}
	if err := e.store.SaveLaunch(ctx, rec); err != nil {
		return LaunchRecord{}, launch.Result{}, err
	}

	log.Debug().
		Str("uid", task.UID).
		Str("run", rec.RunID).
		Str("method", method.String()).
		Bool("cache_hit", hit).
		Msg("compiled launch")
	return rec, res, nil
}

// SpawnLocal compiles, stages and runs one task on this host. The launch
// script runs under bash inside the task sandbox; stdout and stderr are
// captured to <uid>.out and <uid>.err next to it.
func (e *Engine) SpawnLocal(ctx context.Context, task api.Task, slots api.SlotAllocation, method launch.Method) (SpawnResult, error) {
	start := time.Now()

	rec, res, err := e.CompileTask(ctx, task, slots, method)
	if err != nil {
		return SpawnResult{}, err
	}

	dir, err := e.sandbox.TaskDir(task.UID)
	if err != nil {
		return SpawnResult{}, err
	}
	if err := e.store.UpdateSandbox(ctx, rec.RunID, dir); err != nil {
		return SpawnResult{}, err
	}

	if len(task.Description.Stage) > 0 {
		if err := e.store.UpdateState(ctx, rec.RunID, api.TaskStaging, 0); err != nil {
			return SpawnResult{}, err
		}
		stageStart := time.Now()
		stageErr := stage.LocalStager{}.StageIn(ctx, dir, task.Description.Stage)
		e.perf.RecordStageMetrics("local", stagedBytes(task.Description.Stage), time.Since(stageStart), stageErr == nil)
		if stageErr != nil {
			_ = e.store.UpdateState(ctx, rec.RunID, api.TaskFailed, -1)
			return SpawnResult{}, fmt.Errorf("stage in: %w", stageErr)
		}
	}

	if err := sandbox.WriteSideFiles(dir, res.SideFiles); err != nil {
		return SpawnResult{}, err
	}
	script, err := sandbox.WriteLaunchScript(dir, task, res, e.session)
	if err != nil {
		return SpawnResult{}, err
	}

	if e.cfg.Defaults.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.Defaults.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	outPath := filepath.Join(dir, task.UID+".out")
	errPath := filepath.Join(dir, task.UID+".err")
	outFile, err := os.Create(outPath)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("create stdout file: %w", err)
	}
	defer outFile.Close()
	errFile, err := os.Create(errPath)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("create stderr file: %w", err)
	}
	defer errFile.Close()

	var cmd *exec.Cmd
	if res.Wrapper != "" {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", res.Wrapper+" "+script)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/bash", script)
	}
	cmd.Dir = dir
	cmd.Stdout = outFile
	cmd.Stderr = errFile

	if err := e.store.UpdateState(ctx, rec.RunID, api.TaskRunning, 0); err != nil {
		return SpawnResult{}, err
	}
	log.Info().
		Str("uid", task.UID).
		Str("run", rec.RunID).
		Str("method", method.String()).
		Str("sandbox", dir).
		Msg("spawning task")

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exit *exec.ExitError
		if errors.As(runErr, &exit) {
			exitCode = exit.ExitCode()
		} else {
			exitCode = -1
		}
	}

	state := api.TaskDone
	if exitCode != 0 {
		state = api.TaskFailed
	}
	if err := e.store.UpdateState(ctx, rec.RunID, state, exitCode); err != nil {
		return SpawnResult{}, err
	}

	dur := time.Since(start)
	e.perf.RecordSpawnMetrics(method.String(), "local", dur, exitCode)

	if runErr != nil && exitCode == -1 {
		return SpawnResult{}, fmt.Errorf("run launch script: %w", runErr)
	}

	return SpawnResult{
		UID:        task.UID,
		RunID:      rec.RunID,
		Method:     method.String(),
		Command:    res.Command,
		Sandbox:    dir,
		ExitCode:   exitCode,
		StdoutPath: outPath,
		StderrPath: errPath,
		Duration:   dur,
	}, nil
}

// SpawnRemote ships one task placement to a configured node's agent. The
// agent compiles and runs it there; the engine records the outcome and
// mirrors the captured output into the local sandbox.
func (e *Engine) SpawnRemote(ctx context.Context, nodeName string, task api.Task, slots api.SlotAllocation, method launch.Method) (SpawnResult, error) {
	node, err := e.lookupNode(nodeName)
	if err != nil {
		return SpawnResult{}, err
	}
	baseURL, err := e.agentURL(node)
	if err != nil {
		return SpawnResult{}, err
	}

	cli := &agent.Client{BaseURL: baseURL, Token: e.cfg.Agent.Token}
	req := agent.SpawnRequest{
		Task:           task,
		Slots:          slots,
		Method:         method.String(),
		TimeoutSeconds: e.cfg.Defaults.TimeoutSeconds,
		Session:        e.session,
	}

	start := time.Now()
	resp, err := cli.Spawn(ctx, req)
	e.perf.RecordAgentMetrics(baseURL, "spawn", time.Since(start), err == nil)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("spawn on %s: %w", node.Name, err)
	}

	state := api.TaskDone
	if resp.ExitCode != 0 {
		state = api.TaskFailed
	}
	rec := LaunchRecord{
		UID:      task.UID,
		RunID:    resp.RunID,
		Method:   resp.Method,
		Command:  resp.Command,
		Wrapper:  resp.Wrapper,
		Sandbox:  node.Name + ":" + resp.Sandbox,
		State:    state,
		ExitCode: resp.ExitCode,
	}
	if err := e.store.SaveLaunch(ctx, rec); err != nil {
		return SpawnResult{}, err
	}

	// Mirror the remote output locally so ls and debugging work the same
	// for both spawn paths.
	dir, err := e.sandbox.TaskDir(task.UID)
	if err != nil {
		return SpawnResult{}, err
	}
	outPath := filepath.Join(dir, task.UID+".out")
	errPath := filepath.Join(dir, task.UID+".err")
	if err := os.WriteFile(outPath, []byte(resp.Stdout), 0644); err != nil {
		return SpawnResult{}, fmt.Errorf("write stdout: %w", err)
	}
	if err := os.WriteFile(errPath, []byte(resp.Stderr), 0644); err != nil {
		return SpawnResult{}, fmt.Errorf("write stderr: %w", err)
	}

	dur := time.Duration(resp.DurationMS) * time.Millisecond
	e.perf.RecordSpawnMetrics(method.String(), node.Name, dur, resp.ExitCode)
	log.Info().
		Str("uid", task.UID).
		Str("run", resp.RunID).
		Str("node", node.Name).
		Int("exit_code", resp.ExitCode).
		Msg("remote spawn finished")

	return SpawnResult{
		UID:        task.UID,
		RunID:      resp.RunID,
		Method:     resp.Method,
		Command:    resp.Command,
		Sandbox:    rec.Sandbox,
		ExitCode:   resp.ExitCode,
		StdoutPath: outPath,
		StderrPath: errPath,
		Duration:   dur,
	}, nil
}

// ListTasks returns ledger rows, newest first. A limit of zero returns all.
func (e *Engine) ListTasks(ctx context.Context, limit int) ([]LaunchRecord, error) {
	return e.store.ListTasks(ctx, limit)
}

// GetTask returns the latest ledger row for a task uid.
func (e *Engine) GetTask(ctx context.Context, uid string) (LaunchRecord, error) {
	return e.store.GetTask(ctx, uid)
}

func (e *Engine) lookupNode(name string) (RemoteNode, error) {
	for _, n := range e.cfg.Nodes {
		if n.Name == name {
			return n, nil
		}
	}
	return RemoteNode{}, fmt.Errorf("node not configured: %s", name)
}

// agentURL derives the node agent endpoint: the host comes from the node,
// the port from the configured agent listen address.
func (e *Engine) agentURL(node RemoteNode) (string, error) {
	_, port, err := net.SplitHostPort(e.cfg.Agent.Addr)
	if err != nil {
		return "", fmt.Errorf("agent addr %q: %w", e.cfg.Agent.Addr, err)
	}
	return "http://" + net.JoinHostPort(node.IP, port), nil
}

func stagedBytes(directives []api.StageDirective) int64 {
	var total int64
	for _, d := range directives {
		if info, err := os.Stat(d.Source); err == nil {
			total += info.Size()
		}
	}
	return total
}
