// Package executors maps action tags to their implementations. Executors
// are pure consumers of the kernel result model and the filesystem; the
// turn engine owns ordering, dedup, and the context feed.
package executors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/telemetry"
)

// defaultTimeout bounds any action that does not carry its own.
const defaultTimeout = 60 * time.Second

// delegationTimeout bounds agent-send: a delegated turn runs a whole
// sub-agent task, not a single command.
const delegationTimeout = 10 * time.Minute

// actionTimeout resolves the budget for one action. An explicit
// timeoutMs always wins; shell-backed tags keep their longer default.
func actionTimeout(act actions.Action) time.Duration {
	if ms := atoiDefault(act.Attr("timeoutMs"), 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	switch act.Tag {
	case actions.TagBash, actions.TagGit:
		return bashDefaultTimeout
	case actions.TagAgentSend:
		return delegationTimeout
	}
	return defaultTimeout
}

// TaskScheduler is the scheduler surface the schedule executor needs.
type TaskScheduler interface {
	Add(cron, name, body string, prompt bool) (string, error)
}

// AgentMailbox delivers inter-agent tasks. Send blocks until the target
// agent's task completes and returns its end-task summary.
type AgentMailbox interface {
	Send(ctx context.Context, from, to, title, body string) (string, error)
}

// ConnectorAdmin applies connector configuration changes coming from
// telegram-config / discord-config actions.
type ConnectorAdmin interface {
	Configure(connector string, settings map[string]string) error
}

// Env carries the shared collaborators executors draw on. Nil fields
// disable the corresponding actions with a NOT_FOUND result.
type Env struct {
	WorkDir    string
	Events     bus.EventPublisher
	Outbound   bus.MessageRouter
	Procs      *ProcessTable
	Scheduler  TaskScheduler
	Mailbox    AgentMailbox
	Connectors ConnectorAdmin
	SkillsDir  string
	SearchURL  string
	// FormatCmd and TypecheckCmd override the gofmt / go vet defaults for
	// non-Go workspaces.
	FormatCmd    string
	TypecheckCmd string
	// AgentID tags results and outbound messages with their origin.
	AgentID string
	// Tracer, when set, wraps every Execute in an action span nested
	// under the caller's turn span.
	Tracer trace.Tracer
}

// Executor runs one action.
type Executor func(ctx context.Context, act actions.Action, env *Env) *kernel.Result

// Registry dispatches actions by tag.
type Registry struct {
	byTag map[string]Executor
	env   *Env
}

func NewRegistry(env *Env) *Registry {
	r := &Registry{byTag: map[string]Executor{}, env: env}
	r.register(actions.TagRead, execRead)
	r.register(actions.TagWrite, execWrite)
	r.register(actions.TagEdit, execEdit)
	r.register(actions.TagMultiEdit, execMultiEdit)
	r.register(actions.TagLs, execLs)
	r.register(actions.TagGrep, execGrep)
	r.register(actions.TagGlob, execGlob)
	r.register(actions.TagBash, execBash)
	r.register(actions.TagGit, execGit)
	r.register(actions.TagFormat, execFormat)
	r.register(actions.TagTypecheck, execTypecheck)
	r.register(actions.TagFetch, execFetch)
	r.register(actions.TagSearch, execSearch)
	r.register(actions.TagSchedule, execSchedule)
	r.register(actions.TagNotify, execNotify)
	r.register(actions.TagSayMessage, execSayMessage)
	r.register(actions.TagAgentSend, execAgentSend)
	r.register(actions.TagSkill, execSkill)
	r.register(actions.TagSkillInstall, execSkillInstall)
	r.register(actions.TagTelegramConfig, execTelegramConfig)
	r.register(actions.TagDiscordConfig, execDiscordConfig)
	return r
}

func (r *Registry) register(tag string, fn Executor) {
	r.byTag[tag] = fn
}

// Supports reports whether tag has an executor. end-task and
// continue-task are engine sentinels and are not registered here.
func (r *Registry) Supports(tag string) bool {
	_, ok := r.byTag[tag]
	return ok
}

// cancelGrace is how long a cancelled action may keep running before the
// caller abandons it. Cancellation is soft: the action's own context fires
// only after the grace elapses.
const cancelGrace = 2 * time.Second

// Execute runs one action under its resolved timeout. Executor panics are
// normalised into an UNKNOWN error result so a turn never dies mid-round.
// When the caller's context is cancelled, the action gets cancelGrace to
// wind down before it is abandoned.
func (r *Registry) Execute(ctx context.Context, act actions.Action) *kernel.Result {
	fn, ok := r.byTag[act.Tag]
	if !ok {
		return kernel.ErrorResult(kernel.ErrNotFound, fmt.Sprintf("no executor for tag %q", act.Tag))
	}

	if r.env.Tracer != nil {
		var span trace.Span
		ctx, span = telemetry.StartAction(ctx, r.env.Tracer, act.Tag)
		defer span.End()
	}

	actCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), actionTimeout(act))
	defer cancel()

	resCh := make(chan *kernel.Result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("executor panic", "tag", act.Tag, "panic", p)
				resCh <- kernel.ErrorResult(kernel.ErrUnknown, fmt.Sprintf("executor %s panicked: %v", act.Tag, p))
			}
		}()
		resCh <- fn(actCtx, act, r.env)
	}()

	select {
	case res := <-resCh:
		slog.Debug("action executed", "tag", act.Tag, "ok", res.OK, "elapsed", time.Since(start))
		return res
	case <-ctx.Done():
		cancel()
		select {
		case res := <-resCh:
			return res
		case <-time.After(cancelGrace):
			slog.Warn("abandoning cancelled action", "tag", act.Tag)
			return kernel.ErrorResult(kernel.ErrTimeout, fmt.Sprintf("action %s cancelled", act.Tag))
		}
	}
}
