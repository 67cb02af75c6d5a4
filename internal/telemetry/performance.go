package telemetry

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// PerformanceMonitor tracks system and application performance metrics
type PerformanceMonitor struct {
	mu          sync.RWMutex
	enabled     bool
	collector   *Collector
	startTime   time.Time
	lastMetrics runtime.MemStats
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(collector *Collector, enabled bool) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	pm := &PerformanceMonitor{
		enabled:   enabled,
		collector: collector,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if enabled {
		go pm.collectSystemMetrics()
	}

	return pm
}

// collectSystemMetrics periodically collects system performance metrics
func (pm *PerformanceMonitor) collectSystemMetrics() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.recordSystemMetrics()
		}
	}
}

// recordSystemMetrics records current system metrics
func (pm *PerformanceMonitor) recordSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	labels := map[string]string{"component": "system"}

	// Memory metrics
	pm.collector.Gauge("pilotrun_memory_heap_bytes", float64(m.HeapAlloc), labels)
	pm.collector.Gauge("pilotrun_memory_heap_sys_bytes", float64(m.HeapSys), labels)
	pm.collector.Gauge("pilotrun_memory_stack_bytes", float64(m.StackSys), labels)
	pm.collector.Gauge("pilotrun_memory_gc_pause_ns", float64(m.PauseNs[(m.NumGC+255)%256]), labels)

	// GC metrics
	pm.collector.Counter("pilotrun_gc_total", float64(m.NumGC-pm.lastMetrics.NumGC), labels)
	pm.collector.Gauge("pilotrun_gc_cpu_fraction", m.GCCPUFraction*100, labels)

	// Goroutine metrics
	pm.collector.Gauge("pilotrun_goroutines_total", float64(runtime.NumGoroutine()), labels)

	// CPU count
	pm.collector.Gauge("pilotrun_cpu_cores", float64(runtime.NumCPU()), labels)

	// Uptime
	uptime := time.Since(pm.startTime)
	pm.collector.Gauge("pilotrun_uptime_seconds", uptime.Seconds(), labels)

	pm.lastMetrics = m
}

// RecordCompileMetrics records metrics for command compilation
func (pm *PerformanceMonitor) RecordCompileMetrics(method string, duration time.Duration, cacheHit bool) {
	if !pm.enabled {
		return
	}

	labels := map[string]string{
		"method":    method,
		"component": "compiler",
	}

	pm.collector.Timer("pilotrun_compile_duration", duration, labels)
	if cacheHit {
		pm.collector.Counter("pilotrun_compile_cache_hits", 1, labels)
	} else {
		pm.collector.Counter("pilotrun_compile_cache_misses", 1, labels)
	}
}

// RecordSpawnMetrics records metrics for task spawns
func (pm *PerformanceMonitor) RecordSpawnMetrics(method, target string, duration time.Duration, exitCode int) {
	if !pm.enabled {
		return
	}

	labels := map[string]string{
		"method":    method,
		"target":    target,
		"component": "spawner",
	}

	pm.collector.Timer("pilotrun_spawn_duration", duration, labels)
	pm.collector.Gauge("pilotrun_spawn_exit_code", float64(exitCode), labels)

	if exitCode == 0 {
		pm.collector.Counter("pilotrun_spawns_successful", 1, labels)
	} else {
		pm.collector.Counter("pilotrun_spawns_failed", 1, labels)
	}
}

// RecordAgentMetrics records metrics for agent operations
func (pm *PerformanceMonitor) RecordAgentMetrics(nodeAddr, operation string, duration time.Duration, success bool) {
	if !pm.enabled {
		return
	}

	labels := map[string]string{
		"node_addr": nodeAddr,
		"operation": operation,
		"component": "agent",
	}

	pm.collector.Timer("pilotrun_agent_operation_duration", duration, labels)

	if success {
		pm.collector.Counter("pilotrun_agent_operations_successful", 1, labels)
	} else {
		pm.collector.Counter("pilotrun_agent_operations_failed", 1, labels)
	}
}

// RecordStageMetrics records metrics for file staging operations
func (pm *PerformanceMonitor) RecordStageMetrics(action string, fileSize int64, duration time.Duration, success bool) {
	if !pm.enabled {
		return
	}

	labels := map[string]string{
		"action":    action,
		"component": "stage",
	}

	pm.collector.Timer("pilotrun_stage_duration", duration, labels)
	pm.collector.Histogram("pilotrun_stage_size_bytes", float64(fileSize), labels)

	if success {
		pm.collector.Counter("pilotrun_stage_successful", 1, labels)
		// Calculate throughput in MB/s
		if duration.Seconds() > 0 {
			throughputMBps := float64(fileSize) / (1024 * 1024) / duration.Seconds()
			pm.collector.Histogram("pilotrun_stage_throughput_mbps", throughputMBps, labels)
		}
	} else {
		pm.collector.Counter("pilotrun_stage_failed", 1, labels)
	}
}

// RecordSideFileMetrics records the number and size of generated side files
func (pm *PerformanceMonitor) RecordSideFileMetrics(method string, count, totalBytes int) {
	if !pm.enabled {
		return
	}

	labels := map[string]string{
		"method":    method,
		"count":     strconv.Itoa(count),
		"component": "compiler",
	}

	pm.collector.Histogram("pilotrun_side_file_bytes", float64(totalBytes), labels)
}

// Shutdown stops the performance monitor
func (pm *PerformanceMonitor) Shutdown() {
	if pm.cancel != nil {
		pm.cancel()
	}
}

// TimerScope represents a scoped timer for measuring durations
type TimerScope struct {
	startTime time.Time
	name      string
	labels    map[string]string
	collector *Collector
}

// NewTimerScope creates a new timer scope
func NewTimerScope(name string, labels map[string]string) *TimerScope {
	return &TimerScope{
		startTime: time.Now(),
		name:      name,
		labels:    labels,
		collector: GetGlobal(),
	}
}

// End completes the timer and records the duration
func (ts *TimerScope) End() time.Duration {
	duration := time.Since(ts.startTime)
	ts.collector.Timer(ts.name, duration, ts.labels)
	return duration
}

// WithTimerScope executes a function and measures its duration
func WithTimerScope(name string, labels map[string]string, fn func()) time.Duration {
	timer := NewTimerScope(name, labels)
	fn()
	return timer.End()
}
