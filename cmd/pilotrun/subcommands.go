package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gvallee/go_util/pkg/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	core "github.com/pilotrun/pilotrun/internal/core"
	"github.com/pilotrun/pilotrun/internal/launch"
	"github.com/pilotrun/pilotrun/internal/sandbox"
	"github.com/pilotrun/pilotrun/internal/sites"
	gssh "github.com/pilotrun/pilotrun/internal/ssh"
	"github.com/pilotrun/pilotrun/internal/stage"
	"github.com/pilotrun/pilotrun/pkg/api"
)

// Resolve the controller configuration
func loadConfig(cmd *cobra.Command) (core.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	return core.LoadConfig(cfgPath)
}

// readTaskFile decodes a task from a YAML or JSON file. JSON parses as a
// YAML subset, so one decoder covers both.
func readTaskFile(path string) (api.Task, error) {
	var task api.Task
	content, err := os.ReadFile(path)
	if err != nil {
		return task, fmt.Errorf("read task file: %w", err)
	}
	if err := yaml.Unmarshal(content, &task); err != nil {
		return task, fmt.Errorf("parse task file: %w", err)
	}
	if task.UID == "" {
		return task, fmt.Errorf("task file %s has no uid", path)
	}
	return task, nil
}

func readSlotsFile(path string) (api.SlotAllocation, error) {
	var slots api.SlotAllocation
	content, err := os.ReadFile(path)
	if err != nil {
		return slots, fmt.Errorf("read slots file: %w", err)
	}
	if err := yaml.Unmarshal(content, &slots); err != nil {
		return slots, fmt.Errorf("parse slots file: %w", err)
	}
	return slots, nil
}

// resolveLaunch picks the launch method and site record. An explicit
// --method always wins; otherwise the site's default method applies.
func resolveLaunch(cmd *cobra.Command, cfg core.Config) (launch.Method, sites.Site, error) {
	siteKey, _ := cmd.Flags().GetString("site")
	if siteKey == "" {
		siteKey = cfg.Site
	}
	site, siteErr := sites.Builtin().Get(siteKey)

	if name, _ := cmd.Flags().GetString("method"); name != "" {
		m, err := launch.ParseMethod(name)
		if err != nil {
			return 0, site, err
		}
		return m, site, nil
	}
	if siteErr != nil {
		return 0, site, siteErr
	}
	return site.DefaultMethod, site, nil
}

// synthesizeSlots builds a single-node allocation from site geometry when
// no scheduler handed one over.
func synthesizeSlots(site sites.Site, nodeName string, task api.Task) (api.SlotAllocation, error) {
	if site.CoresPerNode == 0 {
		return api.SlotAllocation{}, fmt.Errorf("site %q has no node geometry; pass --slots", site.Key)
	}
	d := task.Description
	return core.BuildSlots(nodeName, "1", site.CoresPerNode, site.GPUsPerNode,
		d.CPUProcesses, d.CPUThreads, d.GPUProcesses, site.LFSPerNode)
}

// sandboxDir resolves the task sandbox, honoring a --sandbox override.
func sandboxDir(cmd *cobra.Command, cfg core.Config, uid string) (string, error) {
	if dir, _ := cmd.Flags().GetString("sandbox"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create sandbox: %w", err)
		}
		return dir, nil
	}
	return sandbox.Sandbox{Root: cfg.SandboxRoot}.TaskDir(uid)
}

func findNode(cfg core.Config, name string) (core.RemoteNode, error) {
	for _, n := range cfg.Nodes {
		if n.Name == name {
			return n, nil
		}
	}
	return core.RemoteNode{}, fmt.Errorf("node not configured: %s", name)
}

// nodeSSHClient assembles the SSH transport for one configured node.
func nodeSSHClient(cfg core.Config, node core.RemoteNode) (*gssh.Client, error) {
	keyPath := node.KeyPath
	if keyPath == "" {
		keyPath = filepath.Join(cfg.SSH.KeyDir, "id_ed25519")
	}
	signer, err := gssh.LoadPrivateKeySigner(keyPath)
	if err != nil {
		return nil, err
	}
	kh, err := gssh.LoadKnownHostsCallback(cfg.SSH.KnownHosts)
	if err != nil {
		return nil, err
	}
	user := node.User
	if user == "" {
		user = cfg.Defaults.User
	}
	port := node.Port
	if port == 0 {
		port = cfg.Defaults.SSHPort
	}
	return &gssh.Client{
		Addr:       fmt.Sprintf("%s:%d", node.IP, port),
		User:       user,
		Signer:     signer,
		KnownHosts: kh,
		Timeout:    15 * time.Second,
		Retries:    cfg.Defaults.Retries,
		Backoff:    500 * time.Millisecond,
	}, nil
}

// List launch methods
func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List supported launch methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range launch.Methods() {
				switch m {
				case launch.Spark, launch.Yarn:
					fmt.Printf("%s\t(data framework, no executable launch)\n", m)
				default:
					fmt.Println(m)
				}
			}
			return nil
		},
	}
}

// List builtin sites
func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List builtin resource sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Printf("default: %s\n", cfg.Site)
			for _, s := range sites.Builtin().List() {
				fmt.Printf("%s\t%s\tcores=%d\tgpus=%d\t%s\n",
					s.Key, s.DefaultMethod, s.CoresPerNode, s.GPUsPerNode, s.Description)
			}
			return nil
		},
	}
}

// Compile a launch command
func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the launch command for a task placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskPath, _ := cmd.Flags().GetString("task")
			slotsPath, _ := cmd.Flags().GetString("slots")
			write, _ := cmd.Flags().GetBool("write")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			task, err := readTaskFile(taskPath)
			if err != nil {
				return err
			}
			method, site, err := resolveLaunch(cmd, cfg)
			if err != nil {
				return err
			}
			var slots api.SlotAllocation
			if slotsPath != "" {
				slots, err = readSlotsFile(slotsPath)
			} else {
				slots, err = synthesizeSlots(site, "localhost", task)
			}
			if err != nil {
				return err
			}

			eng, err := core.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			rec, res, err := eng.CompileTask(cmd.Context(), task, slots, method)
			if err != nil {
				return err
			}
			fmt.Printf("uid: %s\nrun: %s\nmethod: %s\n", rec.UID, rec.RunID, rec.Method)
			if res.Wrapper != "" {
				fmt.Printf("wrapper: %s\n", res.Wrapper)
			}
			fmt.Printf("command: %s\n", res.Command)
			for _, sf := range res.SideFiles {
				fmt.Printf("side file: %s (%d bytes)\n", sf.Name, len(sf.Content))
			}
			if write {
				dir, err := sandboxDir(cmd, cfg, task.UID)
				if err != nil {
					return err
				}
				if err := sandbox.WriteSideFiles(dir, res.SideFiles); err != nil {
					return err
				}
				script, err := sandbox.WriteLaunchScript(dir, task, res, eng.Session())
				if err != nil {
					return err
				}
				fmt.Printf("sandbox: %s\nscript: %s\n", dir, script)
			}
			return nil
		},
	}
	cmd.Flags().String("task", "", "task description file (yaml or json)")
	cmd.Flags().String("slots", "", "slot allocation file; synthesized from site geometry when omitted")
	cmd.Flags().String("method", "", "launch method (defaults to the site default)")
	cmd.Flags().String("site", "", "resource site key (defaults to the configured site)")
	cmd.Flags().String("sandbox", "", "sandbox directory override")
	cmd.Flags().Bool("write", false, "write side files and launch script into the sandbox")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

// Spawn a task
func newSpawnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Compile, stage and execute a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskPath, _ := cmd.Flags().GetString("task")
			slotsPath, _ := cmd.Flags().GetString("slots")
			nodeName, _ := cmd.Flags().GetString("node")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
				cfg.Defaults.TimeoutSeconds = timeout
			}
			task, err := readTaskFile(taskPath)
			if err != nil {
				return err
			}
			method, site, err := resolveLaunch(cmd, cfg)
			if err != nil {
				return err
			}

			target := "localhost"
			if nodeName != "" {
				target = nodeName
			}
			var slots api.SlotAllocation
			if slotsPath != "" {
				slots, err = readSlotsFile(slotsPath)
			} else {
				slots, err = synthesizeSlots(site, target, task)
			}
			if err != nil {
				return err
			}

			eng, err := core.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			var res core.SpawnResult
			if nodeName != "" {
				res, err = eng.SpawnRemote(cmd.Context(), nodeName, task, slots, method)
			} else {
				res, err = eng.SpawnLocal(cmd.Context(), task, slots, method)
			}
			if err != nil {
				return err
			}

			fmt.Printf("uid: %s\nrun: %s\nmethod: %s\ncommand: %s\nsandbox: %s\nexit: %d\nduration: %s\n",
				res.UID, res.RunID, res.Method, res.Command, res.Sandbox,
				res.ExitCode, res.Duration.Round(time.Millisecond))
			if res.StdoutPath != "" {
				fmt.Printf("stdout: %s\nstderr: %s\n", res.StdoutPath, res.StderrPath)
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("task %s exited %d", res.UID, res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().String("task", "", "task description file (yaml or json)")
	cmd.Flags().String("slots", "", "slot allocation file; synthesized from site geometry when omitted")
	cmd.Flags().String("method", "", "launch method (defaults to the site default)")
	cmd.Flags().String("site", "", "resource site key (defaults to the configured site)")
	cmd.Flags().String("node", "", "spawn on a configured remote node through its agent")
	cmd.Flags().Int("timeout", 0, "execution timeout in seconds (overrides config)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

// Stage task inputs
func newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Stage task inputs into a sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskPath, _ := cmd.Flags().GetString("task")
			nodeName, _ := cmd.Flags().GetString("node")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			task, err := readTaskFile(taskPath)
			if err != nil {
				return err
			}
			if len(task.Description.Stage) == 0 {
				fmt.Println("nothing to stage")
				return nil
			}

			if nodeName == "" {
				dir, err := sandboxDir(cmd, cfg, task.UID)
				if err != nil {
					return err
				}
				if err := (stage.LocalStager{}).StageIn(cmd.Context(), dir, task.Description.Stage); err != nil {
					return err
				}
				fmt.Printf("staged %d input(s) into %s\n", len(task.Description.Stage), dir)
				return nil
			}

			remoteDir, _ := cmd.Flags().GetString("sandbox")
			if remoteDir == "" {
				return fmt.Errorf("--sandbox is required with --node")
			}
			node, err := findNode(cfg, nodeName)
			if err != nil {
				return err
			}
			cli, err := nodeSSHClient(cfg, node)
			if err != nil {
				return err
			}
			stager := &stage.RemoteStager{Client: cli}
			if err := stager.StageIn(cmd.Context(), remoteDir, task.Description.Stage); err != nil {
				return err
			}
			fmt.Printf("staged %d input(s) onto %s:%s\n", len(task.Description.Stage), node.Name, remoteDir)
			return nil
		},
	}
	cmd.Flags().String("task", "", "task description file (yaml or json)")
	cmd.Flags().String("sandbox", "", "sandbox directory (remote path with --node)")
	cmd.Flags().String("node", "", "stage onto a configured remote node over SSH")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

// List recorded launches
func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [uid]",
		Short: "List recorded task launches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := core.NewStore(cfg.StorePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				rec, err := store.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("uid: %s\nrun: %s\nmethod: %s\nstate: %s\nexit: %d\ncommand: %s\n",
					rec.UID, rec.RunID, rec.Method, rec.State, rec.ExitCode, rec.Command)
				if rec.Wrapper != "" {
					fmt.Printf("wrapper: %s\n", rec.Wrapper)
				}
				if rec.Sandbox != "" {
					fmt.Printf("sandbox: %s\n", rec.Sandbox)
				}
				fmt.Printf("updated: %s\n", rec.Updated.Format(time.RFC3339))
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			recs, err := store.ListTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Printf("%s\t%s\t%s\t%s\t%d\t%s\n",
					rec.UID, rec.Method, rec.State, rec.RunID, rec.ExitCode,
					rec.Updated.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum rows to list (0 lists all)")
	return cmd
}

// Initialize configuration and environment
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the default config, SSH key and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				cfgPath = core.DefaultConfigPath()
			}

			cfg := core.DefaultConfig()
			if util.FileExists(cfgPath) {
				loaded, err := core.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
				fmt.Printf("config: %s (exists)\n", cfgPath)
			} else {
				if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
					return err
				}
				content, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := os.WriteFile(cfgPath, content, 0644); err != nil {
					return err
				}
				fmt.Printf("config: %s (created)\n", cfgPath)
			}

			for _, dir := range []string{cfg.SandboxRoot, filepath.Dir(cfg.StorePath)} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(cfg.SSH.KeyDir, 0700); err != nil {
				return err
			}

			keyPath := filepath.Join(cfg.SSH.KeyDir, "id_ed25519")
			if util.FileExists(keyPath) {
				fmt.Printf("ssh key: %s (exists)\n", keyPath)
			} else {
				pub, err := gssh.GenerateEd25519Keypair(keyPath)
				if err != nil {
					return err
				}
				fmt.Printf("ssh key: %s (created)\npublic key: %s", keyPath, pub)
			}
			if err := gssh.EnsureKnownHostsFile(cfg.SSH.KnownHosts); err != nil {
				return err
			}
			fmt.Printf("known hosts: %s\n", cfg.SSH.KnownHosts)
			return nil
		},
	}
}
