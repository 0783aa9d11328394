package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// HookFunc receives the current payload and may return a partial overlay
// that is shallow-merged into the running payload. A nil return leaves the
// payload unchanged.
type HookFunc func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)

// HookDef is a registered hook handler. Ordered within (domain, event) by
// Priority ascending, ties broken by registration order.
type HookDef struct {
	ID        string
	PluginID  string
	Domain    string
	Event     string
	Priority  int
	TimeoutMs int
	Handler   HookFunc

	seq int
}

// HookFailure records one handler that erred or timed out during a dispatch.
type HookFailure struct {
	PluginID string        `json:"plugin_id"`
	HookID   string        `json:"hook_id"`
	Elapsed  time.Duration `json:"elapsed_ms"`
	Message  string        `json:"message"`
	TimedOut bool          `json:"timed_out"`
}

// HookReport is the outcome of one DispatchHook call.
type HookReport struct {
	InitialPayload map[string]interface{}
	FinalPayload   map[string]interface{}
	Failures       []HookFailure
}

const defaultHookTimeout = 5 * time.Second

// RegisterHook adds a hook handler for (domain, event).
func (k *Kernel) RegisterHook(def HookDef) error {
	if def.ID == "" || def.PluginID == "" || def.Domain == "" || def.Event == "" {
		return fmt.Errorf("kernel: hook registration requires id, pluginId, domain, event")
	}
	if def.Handler == nil {
		return fmt.Errorf("kernel: hook %q has no handler", def.ID)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hookSeq++
	def.seq = k.hookSeq
	key := hookKey{domain: def.Domain, event: def.Event}
	k.hooks[key] = append(k.hooks[key], &def)
	sort.SliceStable(k.hooks[key], func(i, j int) bool {
		a, b := k.hooks[key][i], k.hooks[key][j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.seq < b.seq
	})
	return nil
}

// DispatchHook runs all handlers for (domain, event) serially in priority
// order. A handler that errs, panics, or exceeds its timeout is recorded in
// Failures and the chain continues with the pre-handler payload. The chain
// as a whole never fails.
func (k *Kernel) DispatchHook(ctx context.Context, domain, event string, payload map[string]interface{}) HookReport {
	k.mu.RLock()
	chain := k.hooks[hookKey{domain: domain, event: event}]
	handlers := make([]*HookDef, len(chain))
	copy(handlers, chain)
	k.mu.RUnlock()

	initial := clonePayload(payload)
	current := clonePayload(payload)
	report := HookReport{InitialPayload: initial}

	for _, h := range handlers {
		overlay, failure := runHandler(ctx, h, clonePayload(current))
		if failure != nil {
			report.Failures = append(report.Failures, *failure)
			continue
		}
		for key, val := range overlay {
			current[key] = val
		}
	}

	report.FinalPayload = current
	if len(report.Failures) > 0 {
		slog.Debug("hook dispatch completed with failures",
			"domain", domain, "event", event, "failures", len(report.Failures))
	}
	return report
}

// runHandler executes one hook handler with timeout and panic containment.
func runHandler(ctx context.Context, h *HookDef, payload map[string]interface{}) (map[string]interface{}, *HookFailure) {
	timeout := time.Duration(h.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		overlay map[string]interface{}
		err     error
	}
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		overlay, err := h.Handler(hctx, payload)
		ch <- outcome{overlay: overlay, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, &HookFailure{
				PluginID: h.PluginID,
				HookID:   h.ID,
				Elapsed:  time.Since(start),
				Message:  out.err.Error(),
			}
		}
		return out.overlay, nil
	case <-hctx.Done():
		// Timed-out handler's eventual partial return is discarded.
		return nil, &HookFailure{
			PluginID: h.PluginID,
			HookID:   h.ID,
			Elapsed:  time.Since(start),
			Message:  fmt.Sprintf("hook exceeded %s", timeout),
			TimedOut: true,
		}
	}
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
