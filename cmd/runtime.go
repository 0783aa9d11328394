package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/agent"
	"github.com/slashbot/slashbot/internal/buffers"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/connectors"
	"github.com/slashbot/slashbot/internal/connectors/discord"
	"github.com/slashbot/slashbot/internal/connectors/telegram"
	"github.com/slashbot/slashbot/internal/contextpipe"
	"github.com/slashbot/slashbot/internal/display"
	"github.com/slashbot/slashbot/internal/executors"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/mcpbridge"
	"github.com/slashbot/slashbot/internal/paths"
	"github.com/slashbot/slashbot/internal/plugin"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/internal/scheduler"
	"github.com/slashbot/slashbot/internal/sessions"
	"github.com/slashbot/slashbot/internal/telemetry"
	"github.com/slashbot/slashbot/internal/transcript"
	"github.com/slashbot/slashbot/pkg/protocol"
)

const mainAgentName = "main"

// runtime assembles every subsystem for a serve or one-shot run.
type runtime struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	k        *kernel.Kernel
	host     *plugin.Host
	provider providers.Provider
	profiles *agent.ProfileStore
	registry *executors.Registry
	env      *executors.Env
	procs    *executors.ProcessTable
	sched    *scheduler.Scheduler
	manager  *connectors.Manager
	console  *display.Console
	store    *transcript.Store
	pastes   *buffers.PasteBuffer
	images   *buffers.ImageBuffer
	tracer   trace.Tracer

	// turnMu serialises turns across sessions: agent history is shared, so
	// only one turn may mutate it at a time.
	turnMu  sync.Mutex
	engMu   sync.Mutex
	engines map[string]*agent.Engine
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = savedAPIKey()
	}

	profiles, err := agent.NewProfileStore()
	if err != nil {
		return nil, fmt.Errorf("load agent profiles: %w", err)
	}

	r := &runtime{
		cfg:      cfg,
		bus:      bus.New(),
		k:        kernel.New(),
		profiles: profiles,
		procs:    executors.NewProcessTable(),
		console:  display.NewConsole(),
		pastes:   buffers.NewPasteBuffer(),
		images:   buffers.NewImageBuffer(),
		engines:  map[string]*agent.Engine{},
	}
	r.provider = providers.NewXAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model, cfg.Provider.VisionModel)

	workDir := cfg.Agent.Workspace
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	if store, err := transcript.Open(paths.TranscriptDB()); err != nil {
		slog.Warn("transcript store unavailable", "error", err)
	} else {
		r.store = store
	}

	mailbox := agent.NewMailbox(profiles, r.runDelegatedTask)
	r.sched = scheduler.New(paths.TasksFile(), r.runScheduledShell, r.runScheduledPrompt)

	env := &executors.Env{
		WorkDir:      workDir,
		Events:       r.bus,
		Outbound:     r.bus,
		Procs:        r.procs,
		Scheduler:    r.sched,
		Mailbox:      mailbox,
		SkillsDir:    filepath.Join(paths.HomeRoot(), "skills"),
		SearchURL:    cfg.Tools.SearchURL,
		FormatCmd:    cfg.Tools.FormatCmd,
		TypecheckCmd: cfg.Tools.TypecheckCmd,
		AgentID:      mainAgentName,
	}
	r.env = env
	r.registry = executors.NewRegistry(env)

	locksDir, err := paths.LocksDir()
	if err != nil {
		return nil, fmt.Errorf("locks dir: %w", err)
	}
	r.manager = connectors.NewManager(connectors.NewLockManager(locksDir), r.bus, r.turnFactory, r.store)
	env.Connectors = r.manager

	if cfg.Connectors.Telegram.Enabled {
		r.manager.Register(telegram.New(connectorConfig(cfg.Connectors.Telegram), r.bus))
	}
	if cfg.Connectors.Discord.Enabled {
		r.manager.Register(discord.New(connectorConfig(cfg.Connectors.Discord), r.bus))
	}

	// Make sure the main agent profile exists before the first turn.
	if _, ok := profiles.ByName(mainAgentName); !ok {
		p := agent.NewProfile(mainAgentName, workDir)
		p.Model = cfg.Provider.Model
		if cfg.Agent.MaxContextMessages > 0 {
			p.MaxContextMessages = cfg.Agent.MaxContextMessages
		}
		if err := profiles.Save(p); err != nil {
			return nil, fmt.Errorf("save main profile: %w", err)
		}
	}

	r.host = plugin.NewHost(r.k)
	r.host.Register(&builtinPlugin{r: r})
	if len(cfg.MCP) > 0 {
		r.host.Register(mcpbridge.New(cfg.MCP))
	}
	return r, nil
}

func connectorConfig(c config.ConnectorConfig) connectors.Config {
	return connectors.Config{
		Token:             c.Token,
		PrimaryTarget:     c.PrimaryTarget,
		AuthorizedTargets: append([]string(nil), c.AuthorizedTargets...),
	}
}

// engineFor returns (building on demand) the engine for a named agent.
func (r *runtime) engineFor(name string) (*agent.Engine, error) {
	r.engMu.Lock()
	defer r.engMu.Unlock()
	if e, ok := r.engines[name]; ok {
		return e, nil
	}
	profile, ok := r.profiles.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}

	cfg := agent.EngineConfig{
		Profile:  profile,
		Provider: r.provider,
		Kernel:   r.k,
		Registry: r.registry,
		Events:   r.bus,
		Display:  r.console,
		Truncate: r.cfg.Truncation,
	}
	if name == mainAgentName {
		cfg.Explore = contextpipe.NewExploreAggregator()
		cfg.Images = r.images
		cfg.Pastes = r.pastes
	}
	e := agent.NewEngine(cfg)
	r.engines[name] = e
	return e, nil
}

// turnFactory builds the session turn for one inbound connector message.
func (r *runtime) turnFactory(msg bus.InboundMessage) sessions.Turn {
	return func(ctx context.Context) (string, error) {
		e, err := r.engineFor(mainAgentName)
		if err != nil {
			return "", err
		}
		if r.tracer != nil {
			var span trace.Span
			ctx, span = telemetry.StartTurn(ctx, r.tracer, mainAgentName, msg.Connector)
			defer span.End()
		}
		r.turnMu.Lock()
		defer r.turnMu.Unlock()
		res, err := e.Chat(ctx, msg.Content, agent.ChatOptions{
			Tab:           msg.Connector,
			ConnectorMode: true,
			MaxIterations: r.cfg.Agent.MaxIterations,
		})
		if err != nil {
			return "", err
		}
		return res.FinalText, nil
	}
}

// runDelegatedTask executes an agent-send delegation as a fresh turn on
// the target agent.
func (r *runtime) runDelegatedTask(ctx context.Context, agentName, prompt string) (agent.TaskOutcome, error) {
	e, err := r.engineFor(agentName)
	if err != nil {
		return agent.TaskOutcome{}, err
	}
	res, err := e.Chat(ctx, prompt, agent.ChatOptions{Tab: agentName, ConnectorMode: true})
	if err != nil {
		return agent.TaskOutcome{}, err
	}
	return agent.TaskOutcome{Summary: res.FinalText, EndedTask: res.EndedTask}, nil
}

// runScheduledShell executes a shell-bodied cron task through the bash
// executor so forbidden-pattern checks still apply.
func (r *runtime) runScheduledShell(ctx context.Context, task scheduler.Task) {
	r.bus.Broadcast(bus.Event{Name: protocol.EventScheduleFired, Payload: map[string]string{
		"task": task.Name, "kind": string(task.BodyKind),
	}})
	res := r.registry.Execute(ctx, actions.Action{
		Tag:   actions.TagBash,
		Attrs: map[string]string{},
		Body:  task.Body,
	})
	if !res.OK {
		slog.Warn("scheduled shell task failed", "task", task.Name, "error", res.ErrMsg)
	}
}

// runScheduledPrompt runs a prompt-bodied cron task as an agent turn.
func (r *runtime) runScheduledPrompt(ctx context.Context, task scheduler.Task) {
	r.bus.Broadcast(bus.Event{Name: protocol.EventScheduleFired, Payload: map[string]string{
		"task": task.Name, "kind": string(task.BodyKind),
	}})
	e, err := r.engineFor(mainAgentName)
	if err != nil {
		slog.Warn("scheduled prompt task has no agent", "task", task.Name, "error", err)
		return
	}
	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	if _, err := e.Chat(ctx, task.Body, agent.ChatOptions{Tab: "cron:" + task.Name, ConnectorMode: true}); err != nil {
		slog.Warn("scheduled prompt task failed", "task", task.Name, "error", err)
	}
}

// applyConfig takes effect for reloadable settings only: connector tokens
// and targets. Engine-level settings apply on the next start.
func (r *runtime) applyConfig(cfg *config.Config) {
	for id, cc := range map[string]config.ConnectorConfig{
		"telegram": cfg.Connectors.Telegram,
		"discord":  cfg.Connectors.Discord,
	} {
		if !cc.Enabled || cc.Token == "" {
			continue
		}
		settings := map[string]string{"token": cc.Token}
		if cc.PrimaryTarget != "" {
			settings["primaryTarget"] = cc.PrimaryTarget
		}
		if err := r.manager.Configure(id, settings); err != nil {
			slog.Debug("config reload skipped connector", "connector", id, "error", err)
		}
	}
	r.cfg.Tools = cfg.Tools
}

func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
}

// savedAPIKey reads the key written by `slashbot login`.
func savedAPIKey() string {
	data, err := os.ReadFile(credentialsPath())
	if err != nil {
		return ""
	}
	return string(trimNewline(data))
}

func credentialsPath() string {
	return filepath.Join(paths.HomeRoot(), "credentials")
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
