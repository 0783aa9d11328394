// Package kernel is the process-scoped registry and DI container.
// Plugins register tools, slash commands, hooks, services, HTTP routes,
// and status indicators during startup; registries are read-only afterwards.
package kernel

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// ToolFunc executes a registered tool. Implementations must honour ctx
// cancellation; the kernel enforces the per-tool timeout around the call.
type ToolFunc func(ctx context.Context, args map[string]interface{}) *Result

// ToolDef describes a plugin-registered tool. Unique by ID within the kernel.
type ToolDef struct {
	ID               string
	Title            string
	Description      string
	PluginID         string
	Parameters       map[string]interface{} // JSON schema; nil hides the tool from the LLM-facing list
	TimeoutMs        int
	RequiresApproval bool
	Execute          ToolFunc
}

// CommandFunc handles a slash command (e.g. /task, /ps).
type CommandFunc func(ctx context.Context, args []string) *Result

// CommandDef describes a plugin-registered slash command.
type CommandDef struct {
	Name        string // without leading slash
	Description string
	PluginID    string
	Handler     CommandFunc
}

// ServiceDef registers a shared service by string id.
type ServiceDef struct {
	ID       string
	PluginID string
	Value    interface{}
}

// RouteDef registers an HTTP route served by the gateway server.
type RouteDef struct {
	Pattern  string
	PluginID string
	Handler  http.HandlerFunc
}

// Indicator is a status snapshot contribution shown in the sidebar.
type Indicator struct {
	ID       string
	PluginID string
	Snapshot func() map[string]interface{}
}

// Approver gates tools that require user approval. Bound once at startup by
// the display layer; nil means every approval request is denied.
type Approver interface {
	Approve(ctx context.Context, prompt string) bool
}

// Kernel holds all registries. Registration is fatal-on-duplicate for tools
// and services; hook ids may repeat across (domain, event) pairs.
type Kernel struct {
	mu         sync.RWMutex
	tools      map[string]*ToolDef
	commands   map[string]*CommandDef
	services   map[string]interface{}
	routes     []RouteDef
	indicators []Indicator
	hooks      map[hookKey][]*HookDef
	hookSeq    int

	approver Approver
}

type hookKey struct {
	domain string
	event  string
}

func New() *Kernel {
	return &Kernel{
		tools:    make(map[string]*ToolDef),
		commands: make(map[string]*CommandDef),
		services: make(map[string]interface{}),
		hooks:    make(map[hookKey][]*HookDef),
	}
}

// BindApprover installs the approval gate. Single assignment; later calls
// are ignored so a late-bound TUI cannot steal the gate from the console.
func (k *Kernel) BindApprover(a Approver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.approver == nil {
		k.approver = a
	}
}

// RegisterTool adds a tool definition. Duplicate ids and missing
// description/pluginId are registration errors, fatal at startup.
func (k *Kernel) RegisterTool(def ToolDef) error {
	if def.ID == "" || def.Description == "" || def.PluginID == "" {
		return fmt.Errorf("kernel: tool registration requires id, description, pluginId (got id=%q)", def.ID)
	}
	if def.Execute == nil {
		return fmt.Errorf("kernel: tool %q has no execute function", def.ID)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.tools[def.ID]; exists {
		return fmt.Errorf("kernel: duplicate tool id %q", def.ID)
	}
	k.tools[def.ID] = &def
	return nil
}

// Tool resolves a tool by id.
func (k *Kernel) Tool(id string) (*ToolDef, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tools[id]
	return t, ok
}

// LLMToolList returns the tools exposed to the model: those with a parameters
// schema, ids sanitized (`.` → `_`), sorted by id for deterministic prompts.
func (k *Kernel) LLMToolList() []ToolDef {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]ToolDef, 0, len(k.tools))
	for _, t := range k.tools {
		if t.Parameters == nil {
			continue
		}
		def := *t
		def.ID = SanitizeToolID(def.ID)
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SanitizeToolID replaces `.` with `_` for LLM-facing schemas.
func SanitizeToolID(id string) string {
	return strings.ReplaceAll(id, ".", "_")
}

// RunTool resolves and executes a tool, enforcing approval, timeout, and
// panic containment. Never returns a nil result.
func (k *Kernel) RunTool(ctx context.Context, id string, args map[string]interface{}) *Result {
	k.mu.RLock()
	def, ok := k.tools[id]
	if !ok {
		// LLM-facing ids are sanitized; try reverse lookup.
		for tid, t := range k.tools {
			if SanitizeToolID(tid) == id {
				def, ok = t, true
				break
			}
		}
	}
	approver := k.approver
	k.mu.RUnlock()

	if !ok {
		return ErrorResult(ErrNotFound, fmt.Sprintf("unknown tool: %s", id))
	}

	if def.RequiresApproval {
		prompt := fmt.Sprintf("Allow tool %q to run?", def.ID)
		if approver == nil || !approver.Approve(ctx, prompt) {
			return ErrorResult(ErrDenied, fmt.Sprintf("approval denied for tool %s", def.ID))
		}
	}

	timeout := time.Duration(def.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- ErrorResult(ErrUnknown, fmt.Sprintf("tool %s panicked: %v", def.ID, r))
			}
		}()
		resultCh <- def.Execute(runCtx, args)
	}()

	select {
	case res := <-resultCh:
		if res == nil {
			return ErrorResult(ErrUnknown, fmt.Sprintf("tool %s returned no result", def.ID))
		}
		return res
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ErrorResult(ErrUnknown, fmt.Sprintf("tool %s cancelled", def.ID))
		}
		return ErrorResult(ErrTimeout, fmt.Sprintf("tool %s exceeded %s", def.ID, timeout))
	}
}

// RegisterCommand adds a slash command.
func (k *Kernel) RegisterCommand(def CommandDef) error {
	if def.Name == "" || def.PluginID == "" {
		return fmt.Errorf("kernel: command registration requires name and pluginId")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.commands[def.Name]; exists {
		return fmt.Errorf("kernel: duplicate command %q", def.Name)
	}
	k.commands[def.Name] = &def
	return nil
}

// Command resolves a slash command by name (without the slash).
func (k *Kernel) Command(name string) (*CommandDef, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	c, ok := k.commands[name]
	return c, ok
}

// Commands lists registered commands sorted by name (for /help).
func (k *Kernel) Commands() []CommandDef {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]CommandDef, 0, len(k.commands))
	for _, c := range k.commands {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterService stores a shared service. Duplicate ids are fatal.
func (k *Kernel) RegisterService(def ServiceDef) error {
	if def.ID == "" {
		return fmt.Errorf("kernel: service registration requires id")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.services[def.ID]; exists {
		return fmt.Errorf("kernel: duplicate service id %q", def.ID)
	}
	k.services[def.ID] = def.Value
	return nil
}

// Service fetches a registered service by id.
func (k *Kernel) Service(id string) (interface{}, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.services[id]
	return v, ok
}

// RegisterRoute contributes an HTTP route to the gateway server.
func (k *Kernel) RegisterRoute(def RouteDef) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.routes = append(k.routes, def)
}

// Routes returns contributed HTTP routes.
func (k *Kernel) Routes() []RouteDef {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]RouteDef, len(k.routes))
	copy(out, k.routes)
	return out
}

// RegisterIndicator contributes a status indicator.
func (k *Kernel) RegisterIndicator(ind Indicator) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.indicators = append(k.indicators, ind)
}

// Indicators snapshots all contributed status indicators.
func (k *Kernel) Indicators() map[string]map[string]interface{} {
	k.mu.RLock()
	inds := make([]Indicator, len(k.indicators))
	copy(inds, k.indicators)
	k.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(inds))
	for _, ind := range inds {
		out[ind.ID] = ind.Snapshot()
	}
	return out
}
