package executors

import (
	"context"
	"strings"
	"testing"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/kernel"
)

func TestForbiddenCommand(t *testing.T) {
	cases := []struct {
		cmd  string
		want bool
	}{
		{"git push --force origin main", true},
		{"git push -f", true},
		{"git push origin main", false},
		{"git reset --hard HEAD~3", true},
		{"git reset --soft HEAD~1", false},
		{"git clean -fd", true},
		{"rm -rf /usr/lib", true},
		{"rm -rf ./build", false},
		{"rm /etc/passwd", true},
		{"echo hello", false},
	}
	for _, tc := range cases {
		if _, got := ForbiddenCommand(tc.cmd); got != tc.want {
			t.Errorf("ForbiddenCommand(%q) = %v, want %v", tc.cmd, got, tc.want)
		}
	}
}

func TestBash_ForbiddenFailsBeforeExecution(t *testing.T) {
	env := testEnv(t)
	res := execBash(context.Background(), actions.Action{
		Tag:  actions.TagBash,
		Body: "git push --force origin main",
	}, env)
	if res.OK || res.ErrCode != kernel.ErrForbidden {
		t.Errorf("forbidden bash = {ok:%v, code:%q}, want FORBIDDEN", res.OK, res.ErrCode)
	}
}

func TestBash_CapturesOutput(t *testing.T) {
	env := testEnv(t)
	res := execBash(context.Background(), actions.Action{
		Tag:  actions.TagBash,
		Body: "echo hello; echo err >&2",
	}, env)
	if !res.OK {
		t.Fatalf("bash failed: %s", res.ErrMsg)
	}
	if !strings.Contains(res.Output, "hello") || !strings.Contains(res.Output, "err") {
		t.Errorf("Output = %q, want stdout and stderr interleaved", res.Output)
	}
}

func TestBash_NonZeroExitIsError(t *testing.T) {
	env := testEnv(t)
	res := execBash(context.Background(), actions.Action{
		Tag:  actions.TagBash,
		Body: "echo partial; exit 3",
	}, env)
	if res.OK {
		t.Fatalf("failing command returned OK")
	}
	if !strings.Contains(res.LLMText(), "partial") {
		t.Errorf("LLMText lost the captured output: %q", res.LLMText())
	}
}

func TestBash_TimeoutMs(t *testing.T) {
	env := testEnv(t)
	res := execBash(context.Background(), actions.Action{
		Tag:   actions.TagBash,
		Attrs: map[string]string{"timeoutMs": "50"},
		Body:  "sleep 5",
	}, env)
	if res.ErrCode != kernel.ErrTimeout {
		t.Errorf("ErrCode = %q, want TIMEOUT", res.ErrCode)
	}
}

func TestBash_BackgroundTrackedAndKillable(t *testing.T) {
	env := testEnv(t)
	env.Procs = NewProcessTable()
	res := execBash(context.Background(), actions.Action{
		Tag:   actions.TagBash,
		Attrs: map[string]string{"background": "true"},
		Body:  "sleep 30",
	}, env)
	if !res.OK {
		t.Fatalf("background bash failed: %s", res.ErrMsg)
	}
	procs := env.Procs.List()
	if len(procs) != 1 {
		t.Fatalf("tracked %d processes, want 1", len(procs))
	}
	if err := env.Procs.Kill(procs[0].PID); err != nil {
		t.Errorf("Kill: %v", err)
	}
	if err := env.Procs.Kill(procs[0].PID); err == nil {
		t.Errorf("second Kill succeeded, want error")
	}
}

func TestGit_PrefixNormalised(t *testing.T) {
	env := testEnv(t)
	// "git git status" must not be spawned.
	res := execGit(context.Background(), actions.Action{
		Tag:  actions.TagGit,
		Body: "git status",
	}, env)
	// Outside a repo this fails, but never with a doubled prefix.
	if strings.Contains(res.LLMText(), "git git") {
		t.Errorf("doubled git prefix in %q", res.LLMText())
	}
}

func TestRegistry_UnknownTag(t *testing.T) {
	r := NewRegistry(testEnv(t))
	res := r.Execute(context.Background(), actions.Action{Tag: "end-task"})
	if res.OK || res.ErrCode != kernel.ErrNotFound {
		t.Errorf("sentinel tag executed = {ok:%v, code:%q}", res.OK, res.ErrCode)
	}
}

func TestRegistry_SupportsAllExecutableTags(t *testing.T) {
	r := NewRegistry(testEnv(t))
	for _, tag := range []string{
		actions.TagBash, actions.TagRead, actions.TagEdit, actions.TagMultiEdit,
		actions.TagWrite, actions.TagGlob, actions.TagGrep, actions.TagLs,
		actions.TagGit, actions.TagFetch, actions.TagSearch, actions.TagFormat,
		actions.TagTypecheck, actions.TagSchedule, actions.TagNotify,
		actions.TagSkill, actions.TagSkillInstall, actions.TagSayMessage,
		actions.TagAgentSend, actions.TagTelegramConfig, actions.TagDiscordConfig,
	} {
		if !r.Supports(tag) {
			t.Errorf("Supports(%q) = false", tag)
		}
	}
	for _, tag := range []string{actions.TagEndTask, actions.TagContinueTask} {
		if r.Supports(tag) {
			t.Errorf("sentinel %q has an executor", tag)
		}
	}
}
