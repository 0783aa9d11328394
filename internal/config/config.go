// Package config loads the runtime configuration from a JSON5 file with
// env var overlays, and hot-reloads on file changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"

	"github.com/slashbot/slashbot/internal/contextpipe"
	"github.com/slashbot/slashbot/internal/mcpbridge"
	"github.com/slashbot/slashbot/internal/paths"
)

// Config is the root configuration.
type Config struct {
	Agent      AgentConfig                `json:"agent"`
	Provider   ProviderConfig             `json:"provider"`
	Connectors ConnectorsConfig           `json:"connectors"`
	Gateway    GatewayConfig              `json:"gateway"`
	Truncation contextpipe.TruncateConfig `json:"truncation"`
	Tools      ToolsConfig                `json:"tools"`
	MCP        []mcpbridge.ServerConfig   `json:"mcp,omitempty"`
}

// AgentConfig holds defaults for the main agent.
type AgentConfig struct {
	Name               string `json:"name"`
	Workspace          string `json:"workspace"`
	MaxContextMessages int    `json:"max_context_messages"`
	MaxIterations      int    `json:"max_iterations"` // connector-mode turn cap
}

// ProviderConfig configures the LLM backend. The API key comes from env
// (GROK_API_KEY or XAI_API_KEY) or the credentials file written by login;
// it never persists in the config file.
type ProviderConfig struct {
	APIKey      string `json:"-"`
	APIBase     string `json:"api_base,omitempty"`
	Model       string `json:"model"`
	VisionModel string `json:"vision_model,omitempty"`
}

// ConnectorConfig configures one connector.
type ConnectorConfig struct {
	Enabled           bool     `json:"enabled"`
	Token             string   `json:"token,omitempty"`
	PrimaryTarget     string   `json:"primary_target,omitempty"`
	AuthorizedTargets []string `json:"authorized_targets,omitempty"`
}

type ConnectorsConfig struct {
	Telegram ConnectorConfig `json:"telegram,omitempty"`
	Discord  ConnectorConfig `json:"discord,omitempty"`
}

// GatewayConfig configures the observer event server.
type GatewayConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// ToolsConfig configures action executor behaviour.
type ToolsConfig struct {
	SearchURL    string `json:"search_url,omitempty"`
	FormatCmd    string `json:"format_cmd,omitempty"`
	TypecheckCmd string `json:"typecheck_cmd,omitempty"`
}

// Default returns a Config with working defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:               "main",
			MaxContextMessages: 40,
			MaxIterations:      15,
		},
		Provider: ProviderConfig{
			Model:       "grok-4",
			VisionModel: "grok-4",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18650,
		},
		Truncation: contextpipe.DefaultTruncateConfig(),
	}
}

// Path returns the config file location, ~/.slashbot/config.json5.
func Path() string {
	return filepath.Join(paths.HomeRoot(), "config.json5")
}

// Load reads the JSON5 file at path, then overlays env vars. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars; they take precedence over file
// values. Connectors auto-enable when a token arrives via env.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if k := os.Getenv("GROK_API_KEY"); k != "" {
		c.Provider.APIKey = k
	} else {
		envStr("XAI_API_KEY", &c.Provider.APIKey)
	}
	envStr("SLASHBOT_MODEL", &c.Provider.Model)
	envStr("SLASHBOT_TELEGRAM_TOKEN", &c.Connectors.Telegram.Token)
	envStr("SLASHBOT_DISCORD_TOKEN", &c.Connectors.Discord.Token)
	envStr("SLASHBOT_WORKSPACE", &c.Agent.Workspace)
	envStr("SLASHBOT_SEARCH_URL", &c.Tools.SearchURL)
	envStr("SLASHBOT_HOST", &c.Gateway.Host)
	if v := os.Getenv("SLASHBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	if c.Connectors.Telegram.Token != "" {
		c.Connectors.Telegram.Enabled = true
	}
	if c.Connectors.Discord.Token != "" {
		c.Connectors.Discord.Enabled = true
	}
}

// Save writes the config as plain JSON (a JSON5 superset reads it back).
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
