// Package plugin implements the plugin host: discovery, ordered setup,
// activation, and mirrored shutdown against the kernel.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/pkg/protocol"
)

// Manifest identifies a plugin. Lower Priority loads first.
type Manifest struct {
	ID       string
	Priority int
}

// Plugin is the contract every plugin satisfies. Setup receives a context
// exposing only registration APIs; all registration happens there.
type Plugin interface {
	Manifest() Manifest
	Setup(ctx *SetupContext) error
}

// Activator is implemented by plugins that need a post-registration phase,
// after all plugins have registered.
type Activator interface {
	Activate(ctx context.Context) error
}

// Deactivator is the shutdown mirror of Activator.
type Deactivator interface {
	Deactivate(ctx context.Context) error
}

// SetupContext exposes registration APIs to one plugin. Registrations are
// tagged with the plugin's id automatically.
type SetupContext struct {
	pluginID string
	k        *kernel.Kernel
}

func (c *SetupContext) PluginID() string { return c.pluginID }

func (c *SetupContext) RegisterTool(def kernel.ToolDef) error {
	def.PluginID = c.pluginID
	return c.k.RegisterTool(def)
}

func (c *SetupContext) RegisterCommand(def kernel.CommandDef) error {
	def.PluginID = c.pluginID
	return c.k.RegisterCommand(def)
}

func (c *SetupContext) RegisterHook(def kernel.HookDef) error {
	def.PluginID = c.pluginID
	return c.k.RegisterHook(def)
}

func (c *SetupContext) RegisterService(id string, value interface{}) error {
	return c.k.RegisterService(kernel.ServiceDef{ID: id, PluginID: c.pluginID, Value: value})
}

func (c *SetupContext) RegisterRoute(def kernel.RouteDef) {
	def.PluginID = c.pluginID
	c.k.RegisterRoute(def)
}

func (c *SetupContext) RegisterIndicator(ind kernel.Indicator) {
	ind.PluginID = c.pluginID
	c.k.RegisterIndicator(ind)
}

// Host owns the plugin lifecycle.
type Host struct {
	k       *kernel.Kernel
	plugins []Plugin
	active  []Plugin // activation order, for reverse shutdown
}

func NewHost(k *kernel.Kernel) *Host {
	return &Host{k: k}
}

// Register adds plugins to the host. Call before Init.
func (h *Host) Register(plugins ...Plugin) {
	h.plugins = append(h.plugins, plugins...)
}

// Init loads plugins in manifest priority order: Setup each, then Activate
// any that define it, then dispatch startup:after-ui-ready. A Setup error
// is fatal; an Activate error is fatal too, after deactivating what already
// activated.
func (h *Host) Init(ctx context.Context) error {
	sort.SliceStable(h.plugins, func(i, j int) bool {
		return h.plugins[i].Manifest().Priority < h.plugins[j].Manifest().Priority
	})

	for _, p := range h.plugins {
		m := p.Manifest()
		slog.Debug("plugin setup", "plugin", m.ID, "priority", m.Priority)
		if err := p.Setup(&SetupContext{pluginID: m.ID, k: h.k}); err != nil {
			return fmt.Errorf("plugin %s setup: %w", m.ID, err)
		}
	}

	for _, p := range h.plugins {
		act, ok := p.(Activator)
		if !ok {
			continue
		}
		if err := act.Activate(ctx); err != nil {
			h.deactivate(ctx)
			return fmt.Errorf("plugin %s activate: %w", p.Manifest().ID, err)
		}
		h.active = append(h.active, p)
	}

	h.k.DispatchHook(ctx, protocol.DomainLifecycle, protocol.HookStartupAfterUI, nil)
	slog.Info("plugins initialised", "count", len(h.plugins))
	return nil
}

// Shutdown deactivates plugins in reverse activation order, then dispatches
// the shutdown kernel hook.
func (h *Host) Shutdown(ctx context.Context) {
	h.deactivate(ctx)
	h.k.DispatchHook(ctx, protocol.DomainKernel, protocol.HookShutdown, nil)
}

func (h *Host) deactivate(ctx context.Context) {
	for i := len(h.active) - 1; i >= 0; i-- {
		p := h.active[i]
		if d, ok := p.(Deactivator); ok {
			if err := d.Deactivate(ctx); err != nil {
				slog.Warn("plugin deactivate failed", "plugin", p.Manifest().ID, "error", err)
			}
		}
	}
	h.active = nil
}
