package executors

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/kernel"
)

// bashDefaultTimeout applies when the tag carries no timeoutMs.
const bashDefaultTimeout = 120 * time.Second

// forbiddenPatterns block destructive commands before they spawn.
var forbiddenPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`git\s+push\s+.*(--force|-f)\b`), "force push is not allowed"},
	{regexp.MustCompile(`git\s+reset\s+--hard`), "hard reset is not allowed"},
	{regexp.MustCompile(`git\s+clean\s+-[a-z]*f[a-z]*d|git\s+clean\s+-[a-z]*d[a-z]*f`), "git clean -fd is not allowed"},
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]+\s+)*(/|/bin|/boot|/etc|/home|/lib|/root|/sbin|/usr|/var)(/|\s|$)`), "rm on system paths is not allowed"},
}

// ForbiddenCommand reports whether cmd matches a blocked pattern.
func ForbiddenCommand(cmd string) (string, bool) {
	for _, p := range forbiddenPatterns {
		if p.re.MatchString(cmd) {
			return p.reason, true
		}
	}
	return "", false
}

// Proc is one tracked background process.
type Proc struct {
	PID       int
	Cmd       string
	StartedAt time.Time
	handle    *exec.Cmd
}

// ProcessTable tracks background bash processes for /ps and /kill.
type ProcessTable struct {
	mu    sync.Mutex
	procs map[int]*Proc
}

func NewProcessTable() *ProcessTable {
	return &ProcessTable{procs: map[int]*Proc{}}
}

func (t *ProcessTable) add(p *Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[p.PID] = p
}

func (t *ProcessTable) remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// List returns tracked processes ordered by start time.
func (t *ProcessTable) List() []Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Proc, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Kill terminates a tracked process by pid.
func (t *ProcessTable) Kill(pid int) error {
	t.mu.Lock()
	p, ok := t.procs[pid]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no tracked process with pid %d", pid)
	}
	if err := p.handle.Process.Kill(); err != nil {
		return err
	}
	t.remove(pid)
	return nil
}

func execBash(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	cmd := strings.TrimSpace(act.Body)
	if cmd == "" {
		cmd = act.Attr("cmd")
	}
	if cmd == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "bash requires a command body")
	}
	if reason, bad := ForbiddenCommand(cmd); bad {
		return kernel.ErrorResult(kernel.ErrForbidden, reason)
	}

	if act.Attr("background") == "true" {
		return spawnBackground(cmd, env)
	}

	timeout := bashDefaultTimeout
	if ms := atoiDefault(act.Attr("timeoutMs"), 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return runShell(ctx, cmd, env.WorkDir)
}

func runShell(ctx context.Context, cmd, dir string) *kernel.Result {
	c := exec.CommandContext(ctx, "bash", "-c", cmd)
	c.Dir = dir
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()
	output := buf.String()
	if ctx.Err() == context.DeadlineExceeded {
		return kernel.ErrorResult(kernel.ErrTimeout, "command timed out").WithRaw(output)
	}
	if err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, fmt.Sprintf("command failed: %v", err)).WithRaw(output)
	}
	res := kernel.NewResult(output)
	res.ForUser = fmt.Sprintf("$ %s", firstLineOf(cmd))
	return res
}

func spawnBackground(cmd string, env *Env) *kernel.Result {
	c := exec.Command("bash", "-c", cmd)
	c.Dir = env.WorkDir
	if err := c.Start(); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, fmt.Sprintf("spawn failed: %v", err))
	}
	p := &Proc{PID: c.Process.Pid, Cmd: cmd, StartedAt: time.Now(), handle: c}
	if env.Procs != nil {
		env.Procs.add(p)
		go func() {
			c.Wait()
			env.Procs.remove(p.PID)
		}()
	}
	res := kernel.NewResult(fmt.Sprintf("started in background, pid %d", p.PID))
	res.ForUser = fmt.Sprintf("Background: %s (pid %d)", firstLineOf(cmd), p.PID)
	return res
}

func execGit(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	sub := strings.TrimSpace(act.Body)
	if sub == "" {
		sub = act.Attr("cmd")
	}
	if sub == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "git requires a subcommand body")
	}
	cmd := "git " + strings.TrimPrefix(sub, "git ")
	if reason, bad := ForbiddenCommand(cmd); bad {
		return kernel.ErrorResult(kernel.ErrForbidden, reason)
	}
	return runShell(ctx, cmd, env.WorkDir)
}

// execFormat runs the formatter configured for the workspace; gofmt when
// nothing is configured.
func execFormat(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	cmd := act.Attr("cmd")
	if cmd == "" {
		cmd = env.FormatCmd
	}
	if cmd == "" {
		cmd = "gofmt -l -w ."
	}
	return runShell(ctx, cmd, env.WorkDir)
}

func execTypecheck(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	cmd := act.Attr("cmd")
	if cmd == "" {
		cmd = env.TypecheckCmd
	}
	if cmd == "" {
		cmd = "go vet ./..."
	}
	return runShell(ctx, cmd, env.WorkDir)
}

func firstLineOf(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
