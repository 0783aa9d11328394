// Package mcpbridge connects external MCP servers and registers their
// tools into the kernel, one kernel tool per discovered MCP tool.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/plugin"
)

const defaultToolTimeoutSec = 60

// ServerConfig describes one MCP server to bridge.
type ServerConfig struct {
	Name       string            `json:"name"`
	Transport  string            `json:"transport"` // stdio | sse | streamable-http
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"toolPrefix,omitempty"`
	TimeoutSec int               `json:"timeoutSec,omitempty"`
	Disabled   bool              `json:"disabled,omitempty"`
}

type serverState struct {
	name      string
	client    *mcpclient.Client
	toolNames []string
}

// Bridge is the MCP plugin. Setup captures the registration surface;
// Activate connects servers and registers their tools.
type Bridge struct {
	configs []ServerConfig

	mu      sync.Mutex
	setup   *plugin.SetupContext
	servers map[string]*serverState
}

func New(configs []ServerConfig) *Bridge {
	return &Bridge{
		configs: configs,
		servers: make(map[string]*serverState),
	}
}

func (b *Bridge) Manifest() plugin.Manifest {
	return plugin.Manifest{ID: "mcp-bridge", Priority: 40}
}

func (b *Bridge) Setup(ctx *plugin.SetupContext) error {
	b.setup = ctx
	return nil
}

// Activate connects every enabled server. Per-server failures warn and
// continue; one unreachable server must not block startup.
func (b *Bridge) Activate(ctx context.Context) error {
	for _, cfg := range b.configs {
		if cfg.Disabled {
			slog.Info("mcp server disabled", "server", cfg.Name)
			continue
		}
		if err := b.connect(ctx, cfg); err != nil {
			slog.Warn("mcp server connect failed", "server", cfg.Name, "error", err)
		}
	}
	return nil
}

// Deactivate closes every connected server.
func (b *Bridge) Deactivate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, ss := range b.servers {
		if err := ss.client.Close(); err != nil {
			slog.Warn("mcp server close failed", "server", name, "error", err)
		}
	}
	b.servers = make(map[string]*serverState)
	return nil
}

// ToolNames lists registered MCP tool ids across all servers.
func (b *Bridge) ToolNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, ss := range b.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}

func (b *Bridge) connect(ctx context.Context, cfg ServerConfig) error {
	client, err := createClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// stdio transports auto-start; the rest need an explicit Start.
	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			client.Close()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "slashbot", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = defaultToolTimeoutSec
	}

	ss := &serverState{name: cfg.Name, client: client}
	for _, tool := range listed.Tools {
		id := bridgedID(cfg, tool.Name)
		def := kernel.ToolDef{
			ID:          id,
			Title:       tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
			TimeoutMs:   timeoutSec * 1000,
			Execute:     b.caller(client, tool.Name),
		}
		if def.Description == "" {
			def.Description = fmt.Sprintf("MCP tool %s from server %s", tool.Name, cfg.Name)
		}
		if err := b.setup.RegisterTool(def); err != nil {
			slog.Warn("mcp tool registration skipped", "server", cfg.Name, "tool", id, "error", err)
			continue
		}
		ss.toolNames = append(ss.toolNames, id)
	}

	b.mu.Lock()
	b.servers[cfg.Name] = ss
	b.mu.Unlock()

	slog.Info("mcp server connected", "server", cfg.Name, "transport", cfg.Transport, "tools", len(ss.toolNames))
	return nil
}

// caller adapts one MCP tool invocation to the kernel result shape.
func (b *Bridge) caller(client *mcpclient.Client, toolName string) kernel.ToolFunc {
	return func(ctx context.Context, args map[string]interface{}) *kernel.Result {
		req := mcpgo.CallToolRequest{}
		req.Params.Name = toolName
		req.Params.Arguments = args

		res, err := client.CallTool(ctx, req)
		if err != nil {
			return kernel.ErrorResult(kernel.ErrIO, fmt.Sprintf("mcp call %s: %v", toolName, err))
		}

		text := flattenContent(res.Content)
		if res.IsError {
			return kernel.ErrorResult(kernel.ErrUnknown, text)
		}
		return kernel.NewResult(text)
	}
}

// bridgedID namespaces a tool as mcp.<server>.<tool>, or with the
// configured prefix when set.
func bridgedID(cfg ServerConfig, tool string) string {
	if cfg.ToolPrefix != "" {
		return cfg.ToolPrefix + tool
	}
	return "mcp." + cfg.Name + "." + tool
}

func createClient(cfg ServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		return mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}

func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
