package kernel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDispatchHook_OverlayMergeInPriorityOrder(t *testing.T) {
	k := New()

	mustRegisterHook(t, k, HookDef{
		ID: "h2", PluginID: "p", Domain: "kernel", Event: "ev", Priority: 20,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"who": "h2"}, nil
		},
	})
	mustRegisterHook(t, k, HookDef{
		ID: "h1", PluginID: "p", Domain: "kernel", Event: "ev", Priority: 10,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"who": "h1", "note": "ok"}, nil
		},
	})

	report := k.DispatchHook(context.Background(), "kernel", "ev", map[string]interface{}{"base": 1})

	if len(report.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", report.Failures)
	}
	if report.FinalPayload["who"] != "h2" {
		t.Errorf("FinalPayload[who] = %v, want h2 (priority 20 runs last)", report.FinalPayload["who"])
	}
	if report.FinalPayload["note"] != "ok" {
		t.Errorf("FinalPayload[note] = %v, want ok", report.FinalPayload["note"])
	}
	if report.FinalPayload["base"] != 1 {
		t.Errorf("FinalPayload[base] = %v, want 1", report.FinalPayload["base"])
	}
	if report.InitialPayload["base"] != 1 || len(report.InitialPayload) != 1 {
		t.Errorf("InitialPayload = %v, want {base: 1}", report.InitialPayload)
	}
}

func TestDispatchHook_FailureIsolation(t *testing.T) {
	k := New()

	mustRegisterHook(t, k, HookDef{
		ID: "ok", PluginID: "p1", Domain: "kernel", Event: "before_tool_call", Priority: 10,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"note": "ok"}, nil
		},
	})
	mustRegisterHook(t, k, HookDef{
		ID: "boom", PluginID: "p2", Domain: "kernel", Event: "before_tool_call", Priority: 20,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("exploded")
		},
	})
	mustRegisterHook(t, k, HookDef{
		ID: "panic", PluginID: "p3", Domain: "kernel", Event: "before_tool_call", Priority: 30,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			panic("kaboom")
		},
	})

	report := k.DispatchHook(context.Background(), "kernel", "before_tool_call", map[string]interface{}{"x": "y"})

	if got := len(report.Failures); got != 2 {
		t.Fatalf("len(Failures) = %d, want 2", got)
	}
	if report.Failures[0].HookID != "boom" || report.Failures[1].HookID != "panic" {
		t.Errorf("failure hook ids = %s, %s, want boom, panic", report.Failures[0].HookID, report.Failures[1].HookID)
	}
	if report.FinalPayload["note"] != "ok" {
		t.Errorf("FinalPayload[note] = %v, want ok (successful overlay kept)", report.FinalPayload["note"])
	}
	if report.FinalPayload["x"] != "y" {
		t.Errorf("FinalPayload[x] = %v, want y", report.FinalPayload["x"])
	}
}

func TestDispatchHook_TimeoutRecordedAndDiscarded(t *testing.T) {
	k := New()

	mustRegisterHook(t, k, HookDef{
		ID: "slow", PluginID: "p", Domain: "lifecycle", Event: "ev", TimeoutMs: 20,
		Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
			time.Sleep(500 * time.Millisecond)
			return map[string]interface{}{"late": true}, nil
		},
	})

	report := k.DispatchHook(context.Background(), "lifecycle", "ev", map[string]interface{}{})

	if len(report.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(report.Failures))
	}
	if !report.Failures[0].TimedOut {
		t.Errorf("Failures[0].TimedOut = false, want true")
	}
	if _, ok := report.FinalPayload["late"]; ok {
		t.Errorf("timed-out handler's overlay leaked into FinalPayload")
	}
}

func TestDispatchHook_TiesBrokenByRegistrationOrder(t *testing.T) {
	k := New()
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		mustRegisterHook(t, k, HookDef{
			ID: id, PluginID: "p", Domain: "custom", Event: "ev", Priority: 5,
			Handler: func(ctx context.Context, p map[string]interface{}) (map[string]interface{}, error) {
				order = append(order, id)
				return nil, nil
			},
		})
	}

	k.DispatchHook(context.Background(), "custom", "ev", nil)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("execution order = %v, want [a b c]", order)
	}
}

func TestDispatchHook_NoHandlersReturnsPayloadUnchanged(t *testing.T) {
	k := New()
	report := k.DispatchHook(context.Background(), "kernel", "missing", map[string]interface{}{"a": 1})
	if report.FinalPayload["a"] != 1 {
		t.Errorf("FinalPayload = %v, want {a: 1}", report.FinalPayload)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %v, want none", report.Failures)
	}
}

func mustRegisterHook(t *testing.T, k *Kernel, def HookDef) {
	t.Helper()
	if err := k.RegisterHook(def); err != nil {
		t.Fatalf("RegisterHook(%s): %v", def.ID, err)
	}
}
