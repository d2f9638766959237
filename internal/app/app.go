// Package app wires every runtime component into one process: the Task
// Store, Event Bus, Scheduler, Agent Registry, Executor/Orchestrator,
// Tool Manager, audit/replay logs, the model-provider registry, and the
// HTTP+SSE server (spec §4, §6).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/agent"
	"github.com/taskmesh/orchestrator/internal/ai"
	"github.com/taskmesh/orchestrator/internal/api"
	"github.com/taskmesh/orchestrator/internal/audit"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/config"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/execctx"
	"github.com/taskmesh/orchestrator/internal/executor"
	"github.com/taskmesh/orchestrator/internal/learning"
	"github.com/taskmesh/orchestrator/internal/logbuffer"
	"github.com/taskmesh/orchestrator/internal/orchestrator"
	"github.com/taskmesh/orchestrator/internal/registry"
	"github.com/taskmesh/orchestrator/internal/replay"
	"github.com/taskmesh/orchestrator/internal/scheduler"
	"github.com/taskmesh/orchestrator/internal/store"
	"github.com/taskmesh/orchestrator/internal/task"
	"github.com/taskmesh/orchestrator/internal/toolmanager"
)

// App owns every process-wide collaborator and the HTTP server built
// from them.
type App struct {
	config *config.Config
	logger *logrus.Logger

	bus      *events.Bus
	cancels  *cancel.Registry
	auditLog *audit.Log
	replays  *replay.Store
	logs     *logbuffer.Hook

	agents    *registry.AgentRegistry
	scheduler *scheduler.Scheduler
	tools     *toolmanager.Manager
	models    *ai.Registry
	learn     *learning.Module

	tasks        *task.Store
	orchestrator *orchestrator.Orchestrator
	server       *api.Server
}

// New wires every collaborator from cfg. It registers the Claude
// provider only when an API key is configured, and always registers the
// deterministic replay provider so GET /api/models and the
// `deterministic` generation mode always resolve to something.
func New(cfg *config.Config) *App {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logHook := logbuffer.NewHook(500)
	logger.AddHook(logHook)

	bus := events.New(logger)
	cancels := cancel.New()
	auditLog := audit.New(1000)
	replays := replay.New(cfg.AI.ReplayCapacity)

	agents := registry.NewAgentRegistry()
	sched := scheduler.New(agents, cfg.Scheduler.MaxConcurrentTasks)
	tools := toolmanager.New(logger, bus, auditLog, replays)
	tools.RegisterTool(toolmanager.NewHTTPTool())
	tools.RegisterTool(toolmanager.NewClockTool())
	learn := learning.New(1000)

	models := ai.NewRegistry(cfg.AI.Mode)
	if cfg.AI.ClaudeAPIKey != "" {
		claude, err := ai.NewClaudeClient(&ai.LLMConfig{
			Provider: ai.ProviderClaude,
			APIKey:   cfg.AI.ClaudeAPIKey,
			Model:    cfg.AI.ClaudeModel,
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize Claude client")
		} else {
			models.Register("claude", claude)
		}
	}
	models.Register("replay", ai.NewReplayClient(replays))

	registerBuiltinAgents(agents, models, replays)
	tools.SetPermissions("researcher", []string{"http_get", "clock"})
	tools.SetPermissions("builder", []string{"http_get", "clock"})

	loader := registry.NewPluginLoader(cfg.Agent.PluginDir, agents, builtinPluginBuilder, logger)
	if err := loader.LoadAll(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to scan agent plugin directory")
	}

	ctxMgr := execctx.New()
	evaluator := executor.New(agents, cancels, ctxMgr, bus, logger)
	tasks := task.New(bus, nil)
	orch := orchestrator.New(tasks, sched, evaluator, agents, logger)
	orch.Subscribe("learning", func(outcome orchestrator.Outcome) {
		rec, err := tasks.Get(outcome.TaskID)
		if err != nil {
			return
		}
		var agentIDs []string
		if len(rec.InvolvedAgents) > 0 {
			agentIDs = rec.InvolvedAgents
		} else if rec.AgentID != "" {
			agentIDs = []string{rec.AgentID}
		}
		strategy := "single-agent"
		if rec.MultiAgentEnabled {
			strategy = "multi-agent"
		}
		learn.Observe(learning.Record{
			ID:         outcome.TaskID,
			AgentIDs:   agentIDs,
			StrategyID: strategy,
			Duration:   outcome.Duration,
			Success:    outcome.Status == task.StatusCompleted,
			Error:      outcome.Error,
			Timestamp:  rec.UpdatedAt,
		})
	})

	a := &App{
		config:       cfg,
		logger:       logger,
		bus:          bus,
		cancels:      cancels,
		auditLog:     auditLog,
		replays:      replays,
		logs:         logHook,
		agents:       agents,
		scheduler:    sched,
		tools:        tools,
		models:       models,
		learn:        learn,
		tasks:        tasks,
		orchestrator: orch,
	}

	if err := a.attachStore(); err != nil {
		logger.WithError(err).Fatal("failed to initialize persistence backend")
	}

	serverConfig := &api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxBodySize:  10 * 1024 * 1024,
		TLSEnabled:   cfg.Server.TLSEnabled,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
	}
	services := &api.Services{
		Tasks:        tasks,
		Scheduler:    sched,
		Orchestrator: orch,
		Agents:       agents,
		Bus:          bus,
		Cancels:      cancels,
		Audit:        auditLog,
		Replay:       replays,
		Learning:     learn,
		Models:       models,
		Logs:         logHook,
	}
	a.server = api.NewServer(serverConfig, services, logger)

	return a
}

// registerBuiltinAgents registers the fixed set of agents the runtime
// ships with: one model-backed agent per multi-agent workflow role, plus
// the diagnostic echo/delay agents the spec's scenarios exercise
// directly (spec §4.7, §8).
func registerBuiltinAgents(agents *registry.AgentRegistry, models *ai.Registry, rep *replay.Store) {
	assistant := agent.New("assistant", "General Assistant", "model", agent.ModelHandler(models, rep, ""))
	assistant.WithTags("general")
	_ = agents.Register(assistant, "builtin-v1")

	research := agent.New("researcher", "Research Agent", "model",
		agent.ModelHandler(models, rep, "You research the task and report findings concisely."))
	research.WithTags("research")
	_ = agents.Register(research, "builtin-v1")

	builder := agent.New("builder", "Build Agent", "model",
		agent.ModelHandler(models, rep, "You implement the plan produced by the research step."))
	builder.WithTags("build")
	_ = agents.Register(builder, "builtin-v1")

	reviewer := agent.New("reviewer", "Review Agent", "model",
		agent.ModelHandler(models, rep, "You critically review the build output for correctness."))
	reviewer.WithTags("review")
	_ = agents.Register(reviewer, "builtin-v1")

	finalizer := agent.New("finalizer", "Finalize Agent", "model",
		agent.ModelHandler(models, rep, "You produce the final answer from the prior steps' outputs."))
	finalizer.WithTags("finalize")
	_ = agents.Register(finalizer, "builtin-v1")

	echo := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	echo.WithTags("echo")
	_ = agents.Register(echo, "builtin-v1")

	slow := agent.New("slow", "Slow Echo", "builtin", agent.DelayHandler(2*time.Second))
	slow.WithTags("echo")
	_ = agents.Register(slow, "builtin-v1")
}

// builtinPluginBuilder resolves a plugin manifest's declared type to one
// of the agent package's built-in handlers, so dropping a `plugin.json`
// under the configured plugin directory is enough to register an extra
// echo/delay diagnostic agent without a code change (spec §4.10).
func builtinPluginBuilder(manifest registry.PluginManifest) (agent.Handler, error) {
	switch manifest.Type {
	case "echo":
		return agent.EchoHandler, nil
	case "delay":
		return agent.DelayHandler(2 * time.Second), nil
	case "http_request":
		return agent.HTTPRequestHandler(&http.Client{Timeout: 15 * time.Second}), nil
	default:
		return nil, fmt.Errorf("unsupported plugin agent type %q", manifest.Type)
	}
}

// attachStore opens the configured persistence backend, rehydrates the
// Task Store/Audit Log/Replay Store from it, and wires it as the sink for
// every subsequent mutation (spec §6, "Persisted state layout"). Only the
// jsonl backend is implemented; arangodb is accepted but falls back to
// jsonl with a warning until that backend is wired (see DESIGN.md).
func (a *App) attachStore() error {
	if a.config.Store.Backend == "arangodb" {
		a.logger.Warn("store backend \"arangodb\" is not yet wired, falling back to jsonl")
	}

	dir := a.config.Store.Dir
	if dir == "" {
		dir = "./data"
	}
	writer, err := store.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open store directory: %w", err)
	}

	ctx := context.Background()
	if err := store.Load(ctx, dir, a.tasks, a.auditLog, a.replays, a.logger); err != nil {
		return fmt.Errorf("failed to rehydrate from store: %w", err)
	}

	a.tasks.SetSink(writer)
	a.auditLog.SetSink(writer)
	a.replays.SetSink(writer)
	return nil
}

// Run starts the HTTP server and blocks until an interrupt or terminate
// signal triggers a graceful shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithFields(logrus.Fields{
			"host": a.config.Server.Host,
			"port": a.config.Server.Port,
		}).Info("starting HTTP server")
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		a.logger.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.server.Stop(ctx)
}
