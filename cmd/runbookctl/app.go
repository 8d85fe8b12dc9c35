package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/runbookctl/engine/analyser/classify"
	"github.com/runbookctl/engine/connector/fs"
	"github.com/runbookctl/engine/connector/mysql"
	"github.com/runbookctl/engine/connector/sourcetree"
	"github.com/runbookctl/engine/connector/sqlite"
	"github.com/runbookctl/engine/internal/container"
	"github.com/runbookctl/engine/internal/executor"
	"github.com/runbookctl/engine/internal/llm"
	"github.com/runbookctl/engine/internal/notify"
	"github.com/runbookctl/engine/internal/notify/redisnotify"
	"github.com/runbookctl/engine/internal/obslog"
	"github.com/runbookctl/engine/internal/plan"
	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/internal/state"
	"github.com/runbookctl/engine/internal/store"
)

// buildRegistry assembles the engine's built-in connectors and
// analysers. A deployment that needs more component types registers
// them the same way before calling plan.Build or constructing an
// Executor; the registry is never a package-level global (§9).
func buildRegistry() *registry.Registry {
	reg := registry.New()
	reg.RegisterConnector("fs", fs.Factory())
	reg.RegisterConnector("sourcetree", sourcetree.Factory())
	reg.RegisterConnector("mysql", mysql.Factory())
	reg.RegisterConnector("sqlite", sqlite.Factory())
	reg.RegisterAnalyser("classify", classify.Factory())
	return reg
}

// buildServiceContainer registers the optional LLM singleton, reading
// its configuration from the environment so a runbook author never
// has to hand credentials through YAML.
func buildServiceContainer() *container.Container {
	c := container.New()
	c.Register("llm", &llm.AnthropicFactory{
		APIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:  envOr("RUNBOOKCTL_ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
	}, container.Singleton)
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// costTrackerFromContainer resolves the LLM singleton and returns it
// as an executor.CostTracker if available, or nil if the factory
// declined to create (e.g. no API key configured).
func costTrackerFromContainer(c *container.Container) executor.CostTracker {
	svc, err := c.Get("llm")
	if err != nil || svc == nil {
		return nil
	}
	tracker, ok := svc.(executor.CostTracker)
	if !ok {
		return nil
	}
	return tracker
}

func stateDirFlag(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("state-dir")
}

func buildPlan(rbPath string) (*plan.Plan, *registry.Registry, error) {
	rb, err := runbook.Parse(rbPath)
	if err != nil {
		return nil, nil, err
	}
	reg := buildRegistry()
	p, err := plan.Build(rb, rbPath, reg)
	if err != nil {
		return nil, reg, err
	}
	return p, reg, nil
}

func buildExecutor(p *plan.Plan, reg *registry.Registry, baseDir string) (*executor.Executor, error) {
	artifactDir := filepath.Join(baseDir, "artifacts")
	st, err := store.NewFSStore(artifactDir)
	if err != nil {
		return nil, err
	}
	stateMgr, err := state.NewManager(baseDir)
	if err != nil {
		return nil, err
	}
	logger := obslog.New(os.Stderr)
	costTracker := costTrackerFromContainer(buildServiceContainer())
	e := executor.New(p, reg, st, stateMgr, logger, costTracker)
	e.Notify = buildNotifyAdapter()
	return e, nil
}

// buildNotifyAdapter wires a redisnotify.Adapter when RUNBOOKCTL_REDIS_URL
// is set, or falls back to notify.Nop() so a run never depends on a
// notification sink being reachable unless one was explicitly configured.
func buildNotifyAdapter() notify.Adapter {
	url := os.Getenv("RUNBOOKCTL_REDIS_URL")
	if url == "" {
		return notify.Nop()
	}
	adapter, err := redisnotify.New(redisnotify.Config{URL: url})
	if err != nil {
		return notify.Nop()
	}
	return adapter
}
