package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/pkg/protocol"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Model != "grok-4" || cfg.Agent.MaxIterations != 15 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Truncation.HardMax != 30_000 {
		t.Errorf("truncation defaults = %+v", cfg.Truncation)
	}
}

func TestLoad_ParsesJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	os.WriteFile(path, []byte(`{
		// comments are allowed
		agent: { name: "helper", max_iterations: 5 },
		provider: { model: "grok-3" },
		connectors: {
			telegram: { enabled: true, token: "tg-token", primary_target: "123" },
		},
	}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Name != "helper" || cfg.Agent.MaxIterations != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Provider.Model != "grok-3" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if !cfg.Connectors.Telegram.Enabled || cfg.Connectors.Telegram.PrimaryTarget != "123" {
		t.Errorf("telegram = %+v", cfg.Connectors.Telegram)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GROK_API_KEY", "grok-key")
	t.Setenv("XAI_API_KEY", "xai-key")
	t.Setenv("SLASHBOT_MODEL", "grok-4-mini")
	t.Setenv("SLASHBOT_DISCORD_TOKEN", "dc-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// GROK_API_KEY wins over XAI_API_KEY.
	if cfg.Provider.APIKey != "grok-key" {
		t.Errorf("APIKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "grok-4-mini" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
	// A token from env auto-enables the connector.
	if !cfg.Connectors.Discord.Enabled || cfg.Connectors.Discord.Token != "dc-token" {
		t.Errorf("discord = %+v", cfg.Connectors.Discord)
	}
}

func TestSave_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json5")
	cfg := Default()
	cfg.Agent.Name = "saved"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Agent.Name != "saved" {
		t.Errorf("Name = %q", loaded.Agent.Name)
	}
}

func TestWatch_ReloadsAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	os.WriteFile(path, []byte(`{agent: {name: "one"}}`), 0o644)

	msgBus := bus.New()
	eventCh := make(chan bus.Event, 4)
	msgBus.Subscribe("test", func(e bus.Event) { eventCh <- e })

	reloaded := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, path, msgBus, func(c *Config) { reloaded <- c }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte(`{agent: {name: "two"}}`), 0o644)

	select {
	case cfg := <-reloaded:
		if cfg.Agent.Name != "two" {
			t.Errorf("reloaded name = %q", cfg.Agent.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("reload never fired")
	}
	select {
	case event := <-eventCh:
		if event.Name != protocol.EventConfigReloaded {
			t.Errorf("event = %q", event.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("config:reloaded never broadcast")
	}
}

func TestWatch_BadConfigKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	os.WriteFile(path, []byte(`{}`), 0o644)

	reloaded := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, path, nil, func(c *Config) { reloaded <- c }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte(`{{{not json5`), 0o644)
	select {
	case <-reloaded:
		t.Fatalf("bad config reported as reload")
	case <-time.After(700 * time.Millisecond):
	}

	// A later good write still reloads.
	os.WriteFile(path, []byte(`{agent: {name: "ok"}}`), 0o644)
	select {
	case cfg := <-reloaded:
		if cfg.Agent.Name != "ok" {
			t.Errorf("name = %q", cfg.Agent.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("watcher stopped after bad config")
	}
}
