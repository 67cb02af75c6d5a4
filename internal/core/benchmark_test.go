package core

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

func BenchmarkBuildSlots(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, err := BuildSlots("node01", "1", 42, 6, 8, 4, 2, api.LFS{Size: 1600000, Path: "/mnt/bb"})
		if err != nil {
			b.Fatalf("BuildSlots failed: %v", err)
		}
	}
}

func BenchmarkChunkCores(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = chunkCores(16, 4)
	}
}

func BenchmarkStoreSaveLaunch(b *testing.B) {
	store, err := NewStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rec := LaunchRecord{
			UID:     "task.bench",
			RunID:   "run-" + strconv.Itoa(i),
			Method:  "mpirun",
			Command: `mpirun -np 4 -host a,a,b,b /bin/echo "bench"`,
			State:   api.TaskPending,
		}
		if err := store.SaveLaunch(ctx, rec); err != nil {
			b.Fatalf("SaveLaunch failed: %v", err)
		}
	}
}
