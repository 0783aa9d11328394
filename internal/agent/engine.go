package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/buffers"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/contextpipe"
	"github.com/slashbot/slashbot/internal/executors"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/pkg/protocol"
)

const (
	// connectorMaxIterations caps turn rounds when driven by a connector;
	// interactive CLI turns are uncapped.
	connectorMaxIterations = 15
	// maxConsecutiveFailures aborts a turn after this many failed actions
	// in a row.
	maxConsecutiveFailures = 3
	// endTaskSummaryCap bounds the final text taken from end-task.
	endTaskSummaryCap = 2000
)

const fencedTagCorrective = "Write action tags directly WITHOUT backticks. Tags inside code fences are treated as documentation and are never executed."

// Display receives user-facing output scoped to an agent tab. The TUI and
// the connector router both implement it.
type Display interface {
	StreamText(tab, delta string)
	ShowResult(tab, text string)
}

// Engine drives one agent's turn loop: assemble prompt, stream the LLM,
// parse actions, execute, feed results back, repeat until end-task or the
// model stops acting.
type Engine struct {
	profile  *Profile
	provider providers.Provider
	kernel   *kernel.Kernel
	registry *executors.Registry
	events   bus.EventPublisher
	display  Display
	explore  *contextpipe.ExploreAggregator
	images   *buffers.ImageBuffer
	pastes   *buffers.PasteBuffer
	truncate contextpipe.TruncateConfig

	history *History
}

// EngineConfig wires an Engine. Provider, Kernel, and Registry are
// required; the rest default to inert implementations.
type EngineConfig struct {
	Profile  *Profile
	Provider providers.Provider
	Kernel   *kernel.Kernel
	Registry *executors.Registry
	Events   bus.EventPublisher
	Display  Display
	Explore  *contextpipe.ExploreAggregator
	Images   *buffers.ImageBuffer
	Pastes   *buffers.PasteBuffer
	Truncate contextpipe.TruncateConfig
	// SystemPrompt overrides the default profile-derived system message.
	SystemPrompt string
}

func NewEngine(cfg EngineConfig) *Engine {
	sys := cfg.SystemPrompt
	if sys == "" {
		sys = BuildSystemPrompt(cfg.Profile, "")
	}
	if cfg.Display == nil {
		cfg.Display = nopDisplay{}
	}
	if cfg.Truncate == (contextpipe.TruncateConfig{}) {
		cfg.Truncate = contextpipe.DefaultTruncateConfig()
	}
	return &Engine{
		profile:  cfg.Profile,
		provider: cfg.Provider,
		kernel:   cfg.Kernel,
		registry: cfg.Registry,
		events:   cfg.Events,
		display:  cfg.Display,
		explore:  cfg.Explore,
		images:   cfg.Images,
		pastes:   cfg.Pastes,
		truncate: cfg.Truncate,
		history:  NewHistory(sys, cfg.Profile.MaxContextMessages),
	}
}

// Profile returns the engine's agent profile.
func (e *Engine) Profile() *Profile { return e.profile }

// History exposes the conversation for read-only snapshots.
func (e *Engine) History() *History { return e.history }

// ChatOptions tune one Chat call.
type ChatOptions struct {
	// Tab scopes user-facing output; defaults to the agent id.
	Tab string
	// ConnectorMode caps iterations and enables the failure-abort policy.
	ConnectorMode bool
	// MaxIterations overrides the connector cap. Zero keeps the default.
	MaxIterations int
}

// ChatResult is the outcome of one completed turn.
type ChatResult struct {
	FinalText  string
	Iterations int
	Usage      providers.Usage
	Aborted    bool
	// EndedTask marks a turn terminated by an explicit end-task action.
	EndedTask bool
}

// executedAction records one action outcome for timeout/abort summaries.
type executedAction struct {
	summary string
	ok      bool
}

// Chat runs one full turn. History is updated atomically: on error or
// cancellation before completion, the conversation is left unchanged.
func (e *Engine) Chat(ctx context.Context, input string, opts ChatOptions) (*ChatResult, error) {
	tab := opts.Tab
	if tab == "" {
		tab = e.profile.ID
	}
	turnID := uuid.NewString()
	e.broadcast(protocol.EventTurnStarted, map[string]string{"agent": e.profile.ID, "turn": turnID})
	if e.explore != nil {
		e.explore.Clear(tab)
	}

	// Compose the user message: expand pastes, attach pending images.
	if e.pastes != nil {
		input = e.pastes.Expand(input)
	}
	userMsg := providers.Message{Role: "user", Content: input}
	if e.images != nil {
		userMsg.Images = e.images.Drain()
	}

	msgs := e.history.Snapshot()
	msgs = append(msgs, userMsg)
	msgs = contextpipe.Compress(msgs, e.profile.MaxContextMessages)
	pending := []providers.Message{userMsg}

	maxIter := 0
	if opts.ConnectorMode {
		maxIter = connectorMaxIterations
		if opts.MaxIterations > 0 {
			maxIter = opts.MaxIterations
		}
	}

	var (
		usage        providers.Usage
		dedup        = contextpipe.NewReadDedup()
		executed     []executedAction
		consecFails  int
		finalText    string
		endedTask    bool
		warningQueue []string
	)

	iteration := 0
	for {
		iteration++
		if maxIter > 0 && iteration > maxIter {
			finalText = timeoutSummary(executed, maxIter)
			break
		}
		if err := ctx.Err(); err != nil {
			return e.abort(turnID, iteration)
		}

		e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookBeforeLLMCall, map[string]interface{}{
			"agent": e.profile.ID, "turn": turnID, "iteration": iteration,
		})

		assistantText, resp, err := e.streamOnce(ctx, msgs, tab)
		if err != nil {
			if ctx.Err() != nil {
				return e.abort(turnID, iteration)
			}
			e.broadcast(protocol.EventTurnFailed, map[string]string{"agent": e.profile.ID, "turn": turnID, "error": err.Error()})
			return nil, fmt.Errorf("llm call failed (iteration %d): %w", iteration, err)
		}
		usage.Add(resp.Usage)

		e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookAfterLLMCall, map[string]interface{}{
			"agent": e.profile.ID, "turn": turnID, "content_len": len(assistantText),
		})

		assistantMsg := providers.Message{Role: "assistant", Content: assistantText}
		msgs = append(msgs, assistantMsg)
		pending = append(pending, assistantMsg)

		parsed := actions.Parse(assistantText)

		// Tags fenced in backticks: correct the model and retry; nothing runs.
		if parsed.FencedTags {
			corrective := providers.Message{Role: "user", Content: fencedTagCorrective}
			msgs = append(msgs, corrective)
			pending = append(pending, corrective)
			continue
		}

		if len(parsed.Warnings) > 0 {
			warningQueue = append(warningQueue, parsed.Warnings[0])
		}

		if len(parsed.Actions) == 0 && len(warningQueue) == 0 {
			finalText = strings.TrimSpace(assistantText)
			break
		}

		feed, done, endMsg := e.executeRound(ctx, parsed.Actions, tab, turnID, occupancy(msgs), dedup, &executed, &consecFails)
		if ctx.Err() != nil {
			return e.abort(turnID, iteration)
		}

		if opts.ConnectorMode && consecFails >= maxConsecutiveFailures {
			finalText = failureSummary(executed)
			break
		}
		if done {
			endedTask = true
			finalText = truncateTo(endMsg, endTaskSummaryCap)
			// Execution before the sentinel still reaches the context via
			// the persisted feed message.
			feedMsg := providers.Message{Role: "user", Content: feed.String()}
			if !feed.Empty() {
				pending = append(pending, feedMsg)
			}
			break
		}

		content := feed.String()
		if feed.Empty() {
			content = FeedOnlyWarnings(warningQueue)
		}
		if len(warningQueue) > 0 && !feed.Empty() {
			content = warningQueue[0] + "\n\n" + content
		}
		warningQueue = nil

		feedMsg := providers.Message{Role: "user", Content: content}
		msgs = append(msgs, feedMsg)
		pending = append(pending, feedMsg)
		msgs = contextpipe.Compress(msgs, e.profile.MaxContextMessages)
	}

	// The turn completed: flush atomically and close out hooks.
	e.history.Append(pending...)
	e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookSessionEnd, map[string]interface{}{
		"agent": e.profile.ID, "turn": turnID,
	})
	e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookAgentEnd, map[string]interface{}{
		"agent": e.profile.ID, "turn": turnID, "iterations": iteration,
	})
	e.broadcast(protocol.EventTurnCompleted, map[string]string{"agent": e.profile.ID, "turn": turnID})

	return &ChatResult{FinalText: finalText, Iterations: iteration, Usage: usage, EndedTask: endedTask}, nil
}

// streamOnce performs one streaming LLM call, scrubbing action tags out of
// the live display. Images anywhere in the window force the vision model.
func (e *Engine) streamOnce(ctx context.Context, msgs []providers.Message, tab string) (string, *providers.ChatResponse, error) {
	model := e.profile.Model
	if model == "" {
		model = e.provider.DefaultModel()
	}
	if hasImages(msgs) {
		model = e.provider.VisionModel()
	}

	scrubber := &actions.StreamScrubber{}
	resp, err := e.provider.ChatStream(ctx, providers.ChatRequest{Messages: msgs, Model: model}, func(chunk providers.StreamChunk) {
		if chunk.Content == "" {
			return
		}
		if visible := scrubber.Feed(chunk.Content); visible != "" {
			e.display.StreamText(tab, visible)
		}
	})
	if err != nil {
		return "", nil, err
	}
	if tail := scrubber.Flush(); tail != "" && !actions.HoldsActionPrefix(tail) {
		e.display.StreamText(tab, tail)
	}
	return resp.Content, resp, nil
}

// executeRound runs one round of parsed actions in order. Returns the
// context feed, whether an end-task sentinel fired, and its message.
func (e *Engine) executeRound(ctx context.Context, acts []actions.Action, tab, turnID string, occupied int,
	dedup *contextpipe.ReadDedup, executed *[]executedAction, consecFails *int) (*contextpipe.FeedBuilder, bool, string) {

	feed := &contextpipe.FeedBuilder{}
	dedupCorrected := false

	for _, act := range acts {
		if ctx.Err() != nil {
			return feed, false, ""
		}

		switch act.Tag {
		case actions.TagEndTask:
			msg := strings.TrimSpace(act.Body)
			if msg == "" {
				msg = act.Attr("message")
			}
			return feed, true, msg
		case actions.TagContinueTask:
			continue
		}

		// Duplicate reads are filtered; past the threshold the model gets
		// one corrective message instead of silent suppression.
		if act.Tag == actions.TagRead {
			if !dedup.ShouldRead(act.Attr("path")) {
				if dedup.Exceeded() && !dedupCorrected {
					feed.Add(act.Summary(), false, dedup.CorrectiveMessage())
					dedupCorrected = true
				}
				continue
			}
		}

		e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookBeforeToolCall, map[string]interface{}{
			"agent": e.profile.ID, "tag": act.Tag,
		})

		res := e.registry.Execute(ctx, act)

		e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookAfterToolCall, map[string]interface{}{
			"agent": e.profile.ID, "tag": act.Tag, "ok": res.OK,
		})

		*executed = append(*executed, executedAction{summary: act.Summary(), ok: res.OK})
		if res.OK {
			*consecFails = 0
		} else {
			*consecFails++
		}

		e.surfaceResult(tab, act, res)
		e.broadcast(protocol.EventActionExecuted, map[string]string{
			"agent": e.profile.ID, "tag": act.Tag, "summary": act.Summary(),
		})
		e.kernel.DispatchHook(ctx, protocol.DomainKernel, protocol.HookToolResultPersist, map[string]interface{}{
			"agent": e.profile.ID, "turn": turnID, "tag": act.Tag, "ok": res.OK, "output": res.LLMText(),
		})

		feed.Add(act.Summary(), res.OK, contextpipe.Truncate(res.LLMText(), e.truncate, occupied))
	}
	return feed, false, ""
}

// surfaceResult routes the user-facing track: exploration output feeds the
// live Explore block; everything else goes straight to the tab.
func (e *Engine) surfaceResult(tab string, act actions.Action, res *kernel.Result) {
	if act.IsExploration() && e.explore != nil && res.OK {
		e.explore.Push(tab, res.Output)
		return
	}
	if text := res.UserText(); text != "" {
		e.display.ShowResult(tab, text)
	}
}

// abort synthesises the cancelled-turn result. Nothing is flushed to
// history: the conversation stays as it was before the turn.
func (e *Engine) abort(turnID string, iteration int) (*ChatResult, error) {
	slog.Info("turn aborted", "agent", e.profile.ID, "turn", turnID, "iteration", iteration)
	e.broadcast(protocol.EventTurnFailed, map[string]string{"agent": e.profile.ID, "turn": turnID, "error": "aborted"})
	return &ChatResult{FinalText: "(aborted)", Iterations: iteration, Aborted: true}, nil
}

func (e *Engine) broadcast(name string, payload interface{}) {
	if e.events != nil {
		e.events.Broadcast(bus.Event{Name: name, Payload: payload})
	}
}

// FeedOnlyWarnings renders a feed message when a round produced warnings
// but no executable actions.
func FeedOnlyWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return contextpipe.FeedContinue
	}
	return warnings[0] + "\n\n" + contextpipe.FeedFixError
}

func timeoutSummary(executed []executedAction, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reached the %d-iteration limit. Actions executed:\n", limit)
	writeActionList(&b, executed)
	return b.String()
}

func failureSummary(executed []executedAction) string {
	var b strings.Builder
	b.WriteString("Aborted after repeated action failures. Actions executed:\n")
	writeActionList(&b, executed)
	return b.String()
}

func writeActionList(b *strings.Builder, executed []executedAction) {
	for _, a := range executed {
		mark := "✓"
		if !a.ok {
			mark = "✗"
		}
		fmt.Fprintf(b, "- [%s] %s\n", mark, a.summary)
	}
}

func truncateTo(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

type nopDisplay struct{}

func (nopDisplay) StreamText(string, string) {}
func (nopDisplay) ShowResult(string, string) {}
