package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreLaunchLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	rec := LaunchRecord{
		UID:     "task.000000",
		RunID:   "run-1",
		Method:  "mpirun",
		Command: `mpirun -np 1 -host a /bin/sleep "10"`,
		State:   api.TaskPending,
	}
	if err := store.SaveLaunch(ctx, rec); err != nil {
		t.Fatalf("SaveLaunch failed: %v", err)
	}

	if err := store.UpdateState(ctx, "run-1", api.TaskRunning, 0); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := store.UpdateState(ctx, "run-1", api.TaskDone, 0); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	got, err := store.GetTask(ctx, "task.000000")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.State != api.TaskDone {
		t.Errorf("Expected state done, got %s", got.State)
	}
	if got.Command != rec.Command {
		t.Errorf("Expected command %q, got %q", rec.Command, got.Command)
	}
}

func TestStoreGetTaskLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, run := range []string{"run-1", "run-2"} {
		rec := LaunchRecord{UID: "task.000001", RunID: run, Method: "fork", Command: "/bin/date", State: api.TaskPending}
		if i == 1 {
			rec.Method = "ssh"
		}
		if err := store.SaveLaunch(ctx, rec); err != nil {
			t.Fatalf("SaveLaunch failed: %v", err)
		}
	}

	got, err := store.GetTask(ctx, "task.000001")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.RunID != "run-2" || got.Method != "ssh" {
		t.Errorf("Expected latest row run-2/ssh, got %s/%s", got.RunID, got.Method)
	}
}

func TestStoreListTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, run := range []string{"run-1", "run-2", "run-3"} {
		rec := LaunchRecord{UID: "task." + run, RunID: run, Method: "fork", Command: "/bin/date", State: api.TaskDone}
		if err := store.SaveLaunch(ctx, rec); err != nil {
			t.Fatalf("SaveLaunch failed: %v", err)
		}
	}

	all, err := store.ListTasks(ctx, 0)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[0].RunID != "run-3" {
		t.Errorf("Expected newest first, got %s", all[0].RunID)
	}

	limited, err := store.ListTasks(ctx, 2)
	if err != nil {
		t.Fatalf("ListTasks with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(limited))
	}
}

func TestStoreUnknownRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateState(ctx, "ghost", api.TaskDone, 0); err == nil {
		t.Error("Expected error updating unknown run")
	}
	if _, err := store.GetTask(ctx, "ghost"); err == nil {
		t.Error("Expected error for unknown task")
	}
}
