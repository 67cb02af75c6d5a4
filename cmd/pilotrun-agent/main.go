package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pilotrun/pilotrun/internal/agent"
	"github.com/pilotrun/pilotrun/internal/telemetry"
)

var version = "1.0.0"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	addr := flag.String("addr", envOr("PILOTRUN_AGENT_ADDR", ":8088"), "listen address")
	sandboxRoot := flag.String("sandbox", os.Getenv("PILOTRUN_AGENT_SANDBOX"), "sandbox root directory")
	monitorAddr := flag.String("monitor", os.Getenv("PILOTRUN_AGENT_MONITOR"), "monitoring listen address (empty disables)")
	profileAddr := flag.String("pprof", os.Getenv("PILOTRUN_AGENT_PPROF"), "profiling listen address (empty disables)")
	flag.Parse()

	interval := 30
	if v := os.Getenv("PILOTRUN_METRICS_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = n
		}
	}
	telemetry.InitGlobal(os.Getenv("PILOTRUN_TELEMETRY") == "true",
		os.Getenv("PILOTRUN_OTLP_ENDPOINT"), time.Duration(interval)*time.Second)

	srv := &agent.Server{Version: version, SandboxRoot: *sandboxRoot}

	var monitor *telemetry.MonitoringServer
	if *monitorAddr != "" {
		monitor = telemetry.NewMonitoringServer(*monitorAddr, telemetry.GetGlobal(), nil)
		for name, check := range telemetry.DefaultHealthChecks() {
			monitor.RegisterHealthCheck(name, check)
		}
		go func() {
			if err := monitor.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintln(os.Stderr, err)
			}
		}()
	}

	profiler := telemetry.NewPerformanceProfiler(*profileAddr != "", *profileAddr)
	_ = profiler.Start()

	mtls := agent.LoadMTLSConfig()
	go func() {
		var err error
		if mtls.ServerCert != "" && mtls.ServerKey != "" {
			err = srv.ListenAndServeTLS(*addr, mtls)
		} else {
			err = srv.ListenAndServe(*addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	fmt.Fprintf(os.Stdout, "pilotrun-agent %s listening on %s\n", version, *addr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	fmt.Fprintln(os.Stdout, "pilotrun-agent shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if monitor != nil {
		_ = monitor.Shutdown(ctx)
	}
	_ = profiler.Shutdown()
	_ = telemetry.Shutdown()
}
