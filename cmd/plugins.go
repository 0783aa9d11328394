package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/slashbot/slashbot/internal/display"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/plugin"
	"github.com/slashbot/slashbot/pkg/protocol"
)

// builtinPlugin contributes the core slash commands, the connector status
// indicator, and the transcript persistence hook.
type builtinPlugin struct {
	r *runtime
}

func (p *builtinPlugin) Manifest() plugin.Manifest {
	return plugin.Manifest{ID: "core", Priority: 10}
}

func (p *builtinPlugin) Setup(ctx *plugin.SetupContext) error {
	r := p.r

	commands := []kernel.CommandDef{
		{Name: "help", Description: "list available commands", Handler: p.cmdHelp},
		{Name: "login", Description: "store the provider API key", Handler: p.cmdLogin},
		{Name: "logout", Description: "remove the stored API key", Handler: p.cmdLogout},
		{Name: "status", Description: "show connector status", Handler: p.cmdStatus},
		{Name: "task", Description: "manage scheduled tasks: list | add <name> <m h dom mon dow> <body...> | rm <id>", Handler: p.cmdTask},
		{Name: "telegram", Description: "configure telegram: /telegram <token> [target]", Handler: p.connectorCmd("telegram")},
		{Name: "discord", Description: "configure discord: /discord <token> [target]", Handler: p.connectorCmd("discord")},
		{Name: "model", Description: "show or set the main agent model", Handler: p.cmdModel},
		{Name: "clear", Description: "clear the main agent conversation", Handler: p.cmdClear},
		{Name: "ps", Description: "list background processes", Handler: p.cmdPs},
		{Name: "kill", Description: "kill a background process: /kill <pid>", Handler: p.cmdKill},
		{Name: "exit", Description: "quit slashbot", Handler: func(context.Context, []string) *kernel.Result {
			return kernel.SilentResult("")
		}},
	}
	for _, def := range commands {
		if err := ctx.RegisterCommand(def); err != nil {
			return err
		}
	}

	ctx.RegisterIndicator(kernel.Indicator{
		ID: "connectors",
		Snapshot: func() map[string]interface{} {
			out := map[string]interface{}{}
			for _, s := range r.manager.Snapshots() {
				out[s.ID] = map[string]interface{}{
					"running": s.Running,
					"primary": s.PrimaryTarget,
					"error":   s.LastError,
				}
			}
			return out
		},
	})

	if r.store != nil {
		if err := ctx.RegisterHook(kernel.HookDef{
			ID:     "transcript-actions",
			Domain: protocol.DomainKernel,
			Event:  protocol.HookToolResultPersist,
			Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
				turn, _ := payload["turn"].(string)
				agentID, _ := payload["agent"].(string)
				tag, _ := payload["tag"].(string)
				ok, _ := payload["ok"].(bool)
				r.store.LogAction(turn, agentID, tag, ok, 0)
				return nil, nil
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *builtinPlugin) cmdHelp(_ context.Context, _ []string) *kernel.Result {
	var b strings.Builder
	for _, c := range p.r.k.Commands() {
		fmt.Fprintf(&b, "/%-10s %s\n", c.Name, c.Description)
	}
	return kernel.NewResult(strings.TrimRight(b.String(), "\n"))
}

func (p *builtinPlugin) cmdLogin(_ context.Context, args []string) *kernel.Result {
	key := ""
	if len(args) > 0 {
		key = args[0]
	} else {
		entered, err := display.PromptAPIKey()
		if err != nil {
			return kernel.ErrorResult(kernel.ErrIO, "could not read API key: "+err.Error())
		}
		key = entered
	}
	if strings.TrimSpace(key) == "" {
		return kernel.ErrorResult(kernel.ErrDenied, "empty API key")
	}
	if err := saveAPIKey(key); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	return kernel.NewResult("API key saved. Restart slashbot to apply it.")
}

func (p *builtinPlugin) cmdLogout(_ context.Context, _ []string) *kernel.Result {
	if err := removeAPIKey(); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	return kernel.NewResult("API key removed.")
}

func (p *builtinPlugin) cmdStatus(_ context.Context, _ []string) *kernel.Result {
	return kernel.NewResult(display.RenderStatus(p.r.manager.Snapshots()))
}

// cmdTask manages cron tasks. Add takes the five cron fields inline:
// /task add standup 0 9 * * 1-5 prompt: write the morning summary
func (p *builtinPlugin) cmdTask(_ context.Context, args []string) *kernel.Result {
	sched := p.r.sched
	if len(args) == 0 || args[0] == "list" {
		tasks := sched.List()
		if len(tasks) == 0 {
			return kernel.NewResult("no scheduled tasks")
		}
		var b strings.Builder
		for _, t := range tasks {
			state := "on"
			if !t.Enabled {
				state = "off"
			}
			fmt.Fprintf(&b, "%s  %-12s %-16s [%s] %s\n", t.ID, t.Name, t.Cron, state, firstLine(t.Body))
		}
		return kernel.NewResult(strings.TrimRight(b.String(), "\n"))
	}

	switch args[0] {
	case "add":
		if len(args) < 7 {
			return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /task add <name> <m h dom mon dow> <body...>")
		}
		name := args[1]
		cron := strings.Join(args[2:7], " ")
		body := strings.Join(args[7:], " ")
		prompt := false
		if strings.HasPrefix(body, "prompt:") {
			prompt = true
			body = strings.TrimSpace(strings.TrimPrefix(body, "prompt:"))
		}
		if body == "" {
			return kernel.ErrorResult(kernel.ErrAmbiguous, "task body is empty")
		}
		id, err := sched.Add(cron, name, body, prompt)
		if err != nil {
			return kernel.ErrorResult(kernel.ErrAmbiguous, err.Error())
		}
		return kernel.NewResult("scheduled " + name + " (" + id + ")")
	case "rm":
		if len(args) < 2 {
			return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /task rm <id>")
		}
		if !sched.Remove(args[1]) {
			return kernel.ErrorResult(kernel.ErrNotFound, "no task with id "+args[1])
		}
		return kernel.NewResult("removed " + args[1])
	case "on", "off":
		if len(args) < 2 {
			return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /task "+args[0]+" <id>")
		}
		if !sched.SetEnabled(args[1], args[0] == "on") {
			return kernel.ErrorResult(kernel.ErrNotFound, "no task with id "+args[1])
		}
		return kernel.NewResult("task " + args[1] + " " + args[0])
	}
	return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /task [list|add|rm|on|off]")
}

// connectorCmd builds the /telegram and /discord config commands.
func (p *builtinPlugin) connectorCmd(connector string) kernel.CommandFunc {
	return func(_ context.Context, args []string) *kernel.Result {
		if len(args) == 0 {
			return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /"+connector+" <token> [target]")
		}
		settings := map[string]string{"token": args[0]}
		if len(args) > 1 {
			settings["primaryTarget"] = args[1]
		}
		if err := p.r.manager.Configure(connector, settings); err != nil {
			return kernel.ErrorResult(kernel.ErrNotFound, err.Error())
		}
		return kernel.NewResult(connector + " configured")
	}
}

func (p *builtinPlugin) cmdModel(_ context.Context, args []string) *kernel.Result {
	profile, ok := p.r.profiles.ByName(mainAgentName)
	if !ok {
		return kernel.ErrorResult(kernel.ErrNotFound, "main agent profile missing")
	}
	if len(args) == 0 {
		model := profile.Model
		if model == "" {
			model = p.r.provider.DefaultModel()
		}
		return kernel.NewResult("model: " + model)
	}
	profile.Model = args[0]
	if err := p.r.profiles.Save(profile); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	return kernel.NewResult("model set to " + args[0])
}

func (p *builtinPlugin) cmdClear(_ context.Context, _ []string) *kernel.Result {
	e, err := p.r.engineFor(mainAgentName)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, err.Error())
	}
	e.History().Clear()
	return kernel.NewResult("conversation cleared")
}

func (p *builtinPlugin) cmdPs(_ context.Context, _ []string) *kernel.Result {
	procs := p.r.procs.List()
	if len(procs) == 0 {
		return kernel.NewResult("no background processes")
	}
	var b strings.Builder
	for _, pr := range procs {
		fmt.Fprintf(&b, "%-8d %s  (since %s)\n", pr.PID, firstLine(pr.Cmd), pr.StartedAt.Format("15:04:05"))
	}
	return kernel.NewResult(strings.TrimRight(b.String(), "\n"))
}

func (p *builtinPlugin) cmdKill(_ context.Context, args []string) *kernel.Result {
	if len(args) == 0 {
		return kernel.ErrorResult(kernel.ErrAmbiguous, "usage: /kill <pid>")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return kernel.ErrorResult(kernel.ErrAmbiguous, "bad pid "+args[0])
	}
	if err := p.r.procs.Kill(pid); err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, err.Error())
	}
	return kernel.NewResult(fmt.Sprintf("killed %d", pid))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
