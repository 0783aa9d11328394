package executors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
)

// agentSendSummaryCap bounds the summary returned to the sender.
const agentSendSummaryCap = 2000

// ErrNoEndTask marks a delegated turn that finished without the end-task
// action. The mailbox wraps it so agent-send can map the failure to a
// MISSING_END_TASK result.
var ErrNoEndTask = errors.New("delegated turn finished without end-task")

func execSchedule(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	if env.Scheduler == nil {
		return kernel.ErrorResult(kernel.ErrNotFound, "scheduler is not running")
	}
	cron := act.Attr("cron")
	name := act.Attr("name")
	if cron == "" || name == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "schedule requires cron and name attributes")
	}
	body := strings.TrimSpace(act.Body)
	if body == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "schedule requires a task body")
	}
	prompt := act.Attr("prompt") == "true"

	id, err := env.Scheduler.Add(cron, name, body, prompt)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, fmt.Sprintf("schedule failed: %v", err))
	}
	res := kernel.NewResult(fmt.Sprintf("scheduled task %s (%s) id=%s", name, cron, id))
	res.ForUser = fmt.Sprintf("Scheduled %q at %s", name, cron)
	return res
}

// execNotify pushes a user-visible notification to a connector target
// without waiting for a reply.
func execNotify(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	if env.Outbound == nil {
		return kernel.ErrorResult(kernel.ErrNotFound, "no connector runtime available")
	}
	text := strings.TrimSpace(act.Body)
	if text == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "notify requires a message body")
	}
	connector, target := splitTarget(act.Attr("to"))
	env.Outbound.PublishOutbound(bus.OutboundMessage{
		Connector: connector,
		TargetID:  target,
		Content:   text,
	})
	return kernel.SilentResult(fmt.Sprintf("notified %s", act.Attr("to")))
}

// execSayMessage delivers mid-turn text to the session's user. The result
// is silent: the message itself is the user-facing output.
func execSayMessage(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	text := strings.TrimSpace(act.Body)
	if text == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "say-message requires a body")
	}
	if env.Outbound != nil {
		connector, target := splitTarget(act.Attr("to"))
		env.Outbound.PublishOutbound(bus.OutboundMessage{
			Connector: connector,
			TargetID:  target,
			Content:   text,
			Metadata:  map[string]string{"agent": env.AgentID},
		})
	}
	return kernel.UserResult("message sent", text)
}

func execAgentSend(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	if env.Mailbox == nil {
		return kernel.ErrorResult(kernel.ErrNotFound, "inter-agent delegation is not available")
	}
	to := act.Attr("to")
	if to == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "agent-send requires a to attribute")
	}
	body := strings.TrimSpace(act.Body)
	if body == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "agent-send requires a task body")
	}

	summary, err := env.Mailbox.Send(ctx, env.AgentID, to, act.Attr("title"), body)
	if err != nil {
		if errors.Is(err, ErrNoEndTask) {
			return kernel.ErrorResult(kernel.ErrMissingEndTask,
				fmt.Sprintf("agent %s finished without an end-task action", to))
		}
		return kernel.ErrorResult(kernel.ErrUnknown, fmt.Sprintf("agent-send to %s: %v", to, err))
	}
	if len(summary) > agentSendSummaryCap {
		summary = summary[:agentSendSummaryCap]
	}
	res := kernel.NewResult(summary)
	res.ForUser = fmt.Sprintf("Delegated to %s", to)
	return res
}

// execSkill loads a skill's instructions into the context.
func execSkill(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	name := act.Attr("name")
	if name == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "skill requires a name attribute")
	}
	if strings.ContainsAny(name, "/\\.") {
		return kernel.ErrorResult(kernel.ErrForbidden, "skill names cannot contain path separators")
	}
	data, err := os.ReadFile(filepath.Join(env.SkillsDir, name, "SKILL.md"))
	if err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, fmt.Sprintf("skill %q is not installed", name)).
			WithHint("install it with skill-install, or check the name with ls on the skills directory")
	}
	res := kernel.NewResult(string(data))
	res.ForUser = "Loaded skill " + name
	return res
}

// execSkillInstall fetches a skill document and stores it under the
// skills directory.
func execSkillInstall(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	name := act.Attr("name")
	src := act.Attr("url")
	if name == "" || src == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "skill-install requires name and url attributes")
	}
	if strings.ContainsAny(name, "/\\.") {
		return kernel.ErrorResult(kernel.ErrForbidden, "skill names cannot contain path separators")
	}

	fetched := execFetch(ctx, actions.Action{Tag: actions.TagFetch, Attrs: map[string]string{"url": src}}, env)
	if !fetched.OK {
		return fetched
	}
	dir := filepath.Join(env.SkillsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(fetched.Output), 0o644); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	res := kernel.NewResult(fmt.Sprintf("installed skill %s from %s", name, src))
	res.ForUser = "Installed skill " + name
	return res
}

func execTelegramConfig(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	return configureConnector("telegram", act, env)
}

func execDiscordConfig(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	return configureConnector("discord", act, env)
}

func configureConnector(connector string, act actions.Action, env *Env) *kernel.Result {
	if env.Connectors == nil {
		return kernel.ErrorResult(kernel.ErrNotFound, "connector runtime is not available")
	}
	if len(act.Attrs) == 0 {
		return kernel.ErrorResult(kernel.ErrNotFound, connector+"-config requires settings attributes")
	}
	if err := env.Connectors.Configure(connector, act.Attrs); err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, err.Error())
	}
	res := kernel.NewResult(fmt.Sprintf("updated %s connector settings", connector))
	res.ForUser = "Updated " + connector + " settings"
	return res
}

// splitTarget parses "connector:targetId"; a bare target falls back to
// the CLI surface.
func splitTarget(to string) (connector, target string) {
	if i := strings.IndexByte(to, ':'); i >= 0 {
		return to[:i], to[i+1:]
	}
	return "cli", to
}
