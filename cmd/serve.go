package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/slashbot/slashbot/internal/agent"
	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/display"
	"github.com/slashbot/slashbot/internal/gatewayserver"
	"github.com/slashbot/slashbot/internal/paths"
	"github.com/slashbot/slashbot/internal/telemetry"
)

// runServe starts the full runtime: plugins, scheduler, connectors, the
// gateway server, config watching, and the interactive console loop.
func runServe() error {
	r, err := newRuntime()
	if err != nil {
		return err
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTel, err := telemetry.Init(ctx)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	} else {
		r.tracer = tracer
		r.env.Tracer = tracer
		defer shutdownTel(context.Background())
	}

	r.k.BindApprover(display.ConsoleApprover{})

	if err := r.host.Init(ctx); err != nil {
		return err
	}
	defer r.host.Shutdown(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.sched.Run(gctx); return nil })
	g.Go(func() error { return r.manager.Start(gctx) })

	if r.cfg.Gateway.Enabled {
		gw := gatewayserver.NewServer(gatewayserver.Config{
			Host:           r.cfg.Gateway.Host,
			Port:           r.cfg.Gateway.Port,
			AllowedOrigins: r.cfg.Gateway.AllowedOrigins,
		}, r.bus, r.k)
		g.Go(func() error { return gw.Start(gctx) })
	}

	cfgPath := resolveConfigPath()
	g.Go(func() error {
		// A bad config on disk must never take the runtime down.
		if err := config.Watch(gctx, cfgPath, r.bus, r.applyConfig); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		defer stop() // EOF on stdin ends the process
		return r.consoleLoop(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runOneShot runs a single message through the main agent and exits.
func runOneShot(message string) error {
	r, err := newRuntime()
	if err != nil {
		return err
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.host.Init(ctx); err != nil {
		return err
	}
	defer r.host.Shutdown(context.Background())

	e, err := r.engineFor(mainAgentName)
	if err != nil {
		return err
	}
	res, err := e.Chat(ctx, message, agent.ChatOptions{Tab: mainAgentName})
	if err != nil {
		return err
	}
	if res.FinalText != "" {
		r.console.Println(res.FinalText)
	}
	return nil
}

// consoleLoop reads stdin: slash commands dispatch through the kernel,
// everything else becomes a main-agent turn.
func (r *runtime) consoleLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	r.console.Println(fmt.Sprintf("slashbot %s ready. /help lists commands, /exit quits.", Version))
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := paths.AppendHistory(line); err != nil {
			slog.Debug("history append failed", "error", err)
		}

		if strings.HasPrefix(line, "/") {
			if line == "/exit" || line == "/quit" {
				return nil
			}
			r.dispatchCommand(ctx, line)
			continue
		}

		e, err := r.engineFor(mainAgentName)
		if err != nil {
			r.console.Println("error: " + err.Error())
			continue
		}
		r.turnMu.Lock()
		_, err = e.Chat(ctx, line, agent.ChatOptions{Tab: mainAgentName})
		r.turnMu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.console.Println("turn failed: " + err.Error())
		}
	}
}

// dispatchCommand resolves and runs one kernel slash command.
func (r *runtime) dispatchCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "/")

	def, ok := r.k.Command(name)
	if !ok {
		r.console.Println(fmt.Sprintf("unknown command /%s (try /help)", name))
		return
	}
	res := def.Handler(ctx, fields[1:])
	if res == nil {
		return
	}
	if !res.OK {
		r.console.Println(res.LLMText())
		return
	}
	if text := res.UserText(); text != "" {
		r.console.Println(text)
	} else if res.Output != "" && !res.Silent {
		r.console.Println(res.Output)
	}
}
