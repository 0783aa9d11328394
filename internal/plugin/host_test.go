package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/slashbot/slashbot/internal/kernel"
)

type fakePlugin struct {
	id       string
	priority int
	log      *[]string
	setupErr error
	actErr   error
}

func (p *fakePlugin) Manifest() Manifest { return Manifest{ID: p.id, Priority: p.priority} }

func (p *fakePlugin) Setup(ctx *SetupContext) error {
	*p.log = append(*p.log, "setup:"+p.id)
	return p.setupErr
}

func (p *fakePlugin) Activate(ctx context.Context) error {
	*p.log = append(*p.log, "activate:"+p.id)
	return p.actErr
}

func (p *fakePlugin) Deactivate(ctx context.Context) error {
	*p.log = append(*p.log, "deactivate:"+p.id)
	return nil
}

func TestInitOrderedByPriority(t *testing.T) {
	var log []string
	h := NewHost(kernel.New())
	h.Register(
		&fakePlugin{id: "late", priority: 50, log: &log},
		&fakePlugin{id: "early", priority: 10, log: &log},
	)

	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := []string{"setup:early", "setup:late", "activate:early", "activate:late"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestShutdownDeactivatesInReverse(t *testing.T) {
	var log []string
	h := NewHost(kernel.New())
	h.Register(
		&fakePlugin{id: "a", priority: 1, log: &log},
		&fakePlugin{id: "b", priority: 2, log: &log},
	)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	log = nil
	h.Shutdown(context.Background())
	if len(log) != 2 || log[0] != "deactivate:b" || log[1] != "deactivate:a" {
		t.Errorf("shutdown order = %v, want [deactivate:b deactivate:a]", log)
	}
}

func TestSetupErrorIsFatal(t *testing.T) {
	var log []string
	h := NewHost(kernel.New())
	h.Register(&fakePlugin{id: "bad", priority: 1, log: &log, setupErr: errors.New("boom")})

	if err := h.Init(context.Background()); err == nil {
		t.Fatalf("Init returned nil for failing Setup")
	}
}

func TestActivateErrorUnwindsActivated(t *testing.T) {
	var log []string
	h := NewHost(kernel.New())
	h.Register(
		&fakePlugin{id: "ok", priority: 1, log: &log},
		&fakePlugin{id: "bad", priority: 2, log: &log, actErr: errors.New("boom")},
	)

	if err := h.Init(context.Background()); err == nil {
		t.Fatalf("Init returned nil for failing Activate")
	}
	last := log[len(log)-1]
	if last != "deactivate:ok" {
		t.Errorf("last log entry = %q, want deactivate:ok", last)
	}
}

func TestSetupContextTagsRegistrations(t *testing.T) {
	k := kernel.New()
	ctx := &SetupContext{pluginID: "p1", k: k}
	err := ctx.RegisterTool(kernel.ToolDef{
		ID:          "t",
		Description: "test tool",
		Execute: func(context.Context, map[string]interface{}) *kernel.Result {
			return kernel.NewResult("ok")
		},
	})
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	def, ok := k.Tool("t")
	if !ok {
		t.Fatalf("tool not registered")
	}
	if def.PluginID != "p1" {
		t.Errorf("PluginID = %q, want p1", def.PluginID)
	}
}
