package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RemoteNode is one compute node reachable over SSH for remote staging and
// spawning.
type RemoteNode struct {
	Name    string `yaml:"name"`
	IP      string `yaml:"ip"`
	User    string `yaml:"user"`
	Port    int    `yaml:"port"`
	KeyPath string `yaml:"key_path"`
}

// Config is the controller configuration. Tokens never live here; they are
// merged in from secrets.env or the process environment.
type Config struct {
	Site        string       `yaml:"site"`
	SandboxRoot string       `yaml:"sandbox_root"`
	StorePath   string       `yaml:"store_path"`
	Nodes       []RemoteNode `yaml:"nodes"`
	SSH         struct {
		KeyDir     string `yaml:"key_dir"`
		KnownHosts string `yaml:"known_hosts"`
	} `yaml:"ssh"`
	Defaults struct {
		User           string `yaml:"user"`
		SSHPort        int    `yaml:"ssh_port"`
		Retries        int    `yaml:"retries"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"defaults"`
	Agent struct {
		Addr  string `yaml:"addr"`
		Token string `yaml:"-"`
	} `yaml:"agent"`
	Telemetry struct {
		Enabled         bool   `yaml:"enabled"`
		OTLPEndpoint    string `yaml:"otlp_endpoint"`
		MonitoringPort  int    `yaml:"monitoring_port"`
		MetricsInterval int    `yaml:"metrics_interval"`
	} `yaml:"telemetry"`
}

// ConfigDir resolves $XDG_CONFIG_HOME/pilotrun (fallback ~/.config/pilotrun).
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pilotrun")
}

// DataDir resolves $XDG_DATA_HOME/pilotrun (fallback ~/.local/share/pilotrun).
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "pilotrun")
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfig returns a working local-only configuration.
func DefaultConfig() Config {
	var cfg Config
	cfg.Site = "localhost"
	cfg.SandboxRoot = filepath.Join(DataDir(), "sandboxes")
	cfg.StorePath = filepath.Join(DataDir(), "pilotrun.db")
	cfg.SSH.KeyDir = filepath.Join(ConfigDir(), "ssh")
	cfg.SSH.KnownHosts = filepath.Join(ConfigDir(), "known_hosts")
	cfg.Defaults.SSHPort = 22
	cfg.Defaults.Retries = 3
	cfg.Defaults.TimeoutSeconds = 300
	cfg.Agent.Addr = ":8088"
	cfg.Telemetry.MetricsInterval = 30
	return cfg
}

// LoadConfig reads YAML configuration from a path. If path is empty it
// resolves the default location; a missing default file is not an error and
// yields DefaultConfig. Empty fields are backfilled with defaults and the
// agent token is merged from secrets.env / PILOTRUN_AGENT_TOKEN.
func LoadConfig(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	content, err := os.ReadFile(resolved)
	if err != nil {
		if path == "" && os.IsNotExist(err) {
			mergeSecrets(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	mergeSecrets(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Site == "" {
		cfg.Site = def.Site
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = def.SandboxRoot
	}
	if cfg.StorePath == "" {
		cfg.StorePath = def.StorePath
	}
	if cfg.SSH.KeyDir == "" {
		cfg.SSH.KeyDir = def.SSH.KeyDir
	}
	if cfg.SSH.KnownHosts == "" {
		cfg.SSH.KnownHosts = def.SSH.KnownHosts
	}
	if cfg.Defaults.SSHPort == 0 {
		cfg.Defaults.SSHPort = def.Defaults.SSHPort
	}
	if cfg.Defaults.Retries == 0 {
		cfg.Defaults.Retries = def.Defaults.Retries
	}
	if cfg.Defaults.TimeoutSeconds == 0 {
		cfg.Defaults.TimeoutSeconds = def.Defaults.TimeoutSeconds
	}
	if cfg.Agent.Addr == "" {
		cfg.Agent.Addr = def.Agent.Addr
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = def.Telemetry.MetricsInterval
	}
}

// mergeSecrets pulls the agent token from secrets.env and the process
// environment, with the environment winning.
func mergeSecrets(cfg *Config) {
	secrets, _ := LoadSecrets("")
	if t, ok := secrets["PILOTRUN_AGENT_TOKEN"]; ok && t != "" {
		cfg.Agent.Token = t
	}
	if v := os.Getenv("PILOTRUN_AGENT_TOKEN"); v != "" {
		cfg.Agent.Token = v
	}
}
