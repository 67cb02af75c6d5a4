package core

import (
	"os"
	"path/filepath"
	"testing"
)

// isolateConfig points the XDG directories at a scratch tree so tests never
// see the developer's real configuration.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("PILOTRUN_AGENT_TOKEN", "")
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateConfig(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Site != "localhost" {
		t.Errorf("Expected localhost site, got %s", cfg.Site)
	}
	if cfg.Defaults.SSHPort != 22 || cfg.Defaults.Retries != 3 {
		t.Errorf("Expected backfilled defaults, got %+v", cfg.Defaults)
	}
	if cfg.Agent.Addr != ":8088" {
		t.Errorf("Expected default agent addr, got %s", cfg.Agent.Addr)
	}
	if cfg.Telemetry.MetricsInterval != 30 {
		t.Errorf("Expected 30s metrics interval, got %d", cfg.Telemetry.MetricsInterval)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `site: ornl.summit
sandbox_root: /scratch/pilotrun
nodes:
  - name: node01
    ip: 10.0.0.5
    user: hpc
ssh:
  key_dir: /home/hpc/.pilotrun/ssh
telemetry:
  enabled: true
  monitoring_port: 9188
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Site != "ornl.summit" {
		t.Errorf("Expected ornl.summit, got %s", cfg.Site)
	}
	if cfg.SandboxRoot != "/scratch/pilotrun" {
		t.Errorf("Expected sandbox root from file, got %s", cfg.SandboxRoot)
	}
	if len(cfg.Nodes) != 1 || cfg.Nodes[0].Name != "node01" || cfg.Nodes[0].IP != "10.0.0.5" {
		t.Errorf("Expected node01, got %+v", cfg.Nodes)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.MonitoringPort != 9188 {
		t.Errorf("Expected telemetry settings, got %+v", cfg.Telemetry)
	}

	// Unset fields are backfilled.
	if cfg.Defaults.SSHPort != 22 {
		t.Errorf("Expected backfilled ssh port, got %d", cfg.Defaults.SSHPort)
	}
	if cfg.StorePath == "" {
		t.Error("Expected backfilled store path")
	}
	if cfg.SSH.KnownHosts == "" {
		t.Error("Expected backfilled known_hosts path")
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	isolateConfig(t)

	if _, err := LoadConfig("/nonexistent/pilotrun.yaml"); err == nil {
		t.Error("Expected error for missing explicit config path")
	}
}

func TestAgentTokenMerge(t *testing.T) {
	dir := isolateConfig(t)

	secrets := filepath.Join(dir, "pilotrun", "secrets.env")
	if err := os.MkdirAll(filepath.Dir(secrets), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "# agent credentials\nPILOTRUN_AGENT_TOKEN = from-file\n"
	if err := os.WriteFile(secrets, []byte(content), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Agent.Token != "from-file" {
		t.Errorf("Expected token from secrets.env, got %q", cfg.Agent.Token)
	}

	t.Setenv("PILOTRUN_AGENT_TOKEN", "from-env")
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Agent.Token != "from-env" {
		t.Errorf("Expected environment to win, got %q", cfg.Agent.Token)
	}
}

func TestLoadSecretsMissingFile(t *testing.T) {
	isolateConfig(t)

	secrets, err := LoadSecrets("")
	if err != nil {
		t.Fatalf("LoadSecrets failed: %v", err)
	}
	if len(secrets) != 0 {
		t.Errorf("Expected empty secrets, got %v", secrets)
	}
}
