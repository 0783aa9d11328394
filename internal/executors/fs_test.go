package executors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/pkg/protocol"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{WorkDir: t.TempDir()}
}

func writeFile(t *testing.T, env *Env, name, content string) string {
	t.Helper()
	full := filepath.Join(env.WorkDir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func readFile(t *testing.T, full string) string {
	t.Helper()
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRead_OffsetLimit(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "f.txt", "l0\nl1\nl2\nl3\nl4")

	res := execRead(context.Background(), actions.Action{
		Tag:   actions.TagRead,
		Attrs: map[string]string{"path": "f.txt", "offset": "1", "limit": "2"},
	}, env)
	if !res.OK {
		t.Fatalf("read failed: %s", res.ErrMsg)
	}
	if res.Output != "l1\nl2" {
		t.Errorf("Output = %q, want %q", res.Output, "l1\nl2")
	}
}

func TestRead_Missing(t *testing.T) {
	res := execRead(context.Background(), actions.Action{
		Tag: actions.TagRead, Attrs: map[string]string{"path": "nope.txt"},
	}, testEnv(t))
	if res.OK || res.ErrCode != kernel.ErrNotFound {
		t.Errorf("read missing = {ok:%v, code:%q}, want NOT_FOUND", res.OK, res.ErrCode)
	}
}

func TestWrite_CreatesParents(t *testing.T) {
	env := testEnv(t)
	res := execWrite(context.Background(), actions.Action{
		Tag:   actions.TagWrite,
		Attrs: map[string]string{"path": "a/b/c.txt"},
		Body:  "content",
	}, env)
	if !res.OK {
		t.Fatalf("write failed: %s", res.ErrMsg)
	}
	if got := readFile(t, filepath.Join(env.WorkDir, "a/b/c.txt")); got != "content" {
		t.Errorf("file content = %q", got)
	}
}

func TestEdit_ExactMatchAndEvent(t *testing.T) {
	env := testEnv(t)
	b := bus.New()
	env.Events = b
	var applied []bus.EditAppliedPayload
	b.Subscribe("test", func(ev bus.Event) {
		if ev.Name == protocol.EventEditApplied {
			applied = append(applied, ev.Payload.(bus.EditAppliedPayload))
		}
	})

	full := writeFile(t, env, "f.ts", "export const X = 1;\n")
	res := execEdit(context.Background(), actions.Action{
		Tag:   actions.TagEdit,
		Attrs: map[string]string{"path": "f.ts"},
		Body:  "<search>= 1</search><replace>= 2</replace>",
	}, env)
	if !res.OK {
		t.Fatalf("edit failed: %s", res.ErrMsg)
	}
	if got := readFile(t, full); got != "export const X = 2;\n" {
		t.Errorf("file = %q", got)
	}
	if len(applied) != 1 || applied[0].BeforeContent == applied[0].AfterContent {
		t.Errorf("edit:applied payloads = %+v", applied)
	}
}

func TestEdit_PatternNotFound(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "f.go", "package main\n")
	res := execEdit(context.Background(), actions.Action{
		Tag:   actions.TagEdit,
		Attrs: map[string]string{"path": "f.go"},
		Body:  "<search>does not exist</search><replace>x</replace>",
	}, env)
	if res.ErrCode != kernel.ErrPatternNotFound {
		t.Errorf("ErrCode = %q, want PATTERN_NOT_FOUND", res.ErrCode)
	}
}

func TestEdit_AmbiguousWithoutReplaceAll(t *testing.T) {
	env := testEnv(t)
	full := writeFile(t, env, "f.go", "x = 1\nx = 1\n")
	res := execEdit(context.Background(), actions.Action{
		Tag:   actions.TagEdit,
		Attrs: map[string]string{"path": "f.go"},
		Body:  "<search>x = 1</search><replace>x = 2</replace>",
	}, env)
	if res.ErrCode != kernel.ErrAmbiguous {
		t.Fatalf("ErrCode = %q, want AMBIGUOUS", res.ErrCode)
	}
	if readFile(t, full) != "x = 1\nx = 1\n" {
		t.Errorf("ambiguous edit modified the file")
	}

	res = execEdit(context.Background(), actions.Action{
		Tag:   actions.TagEdit,
		Attrs: map[string]string{"path": "f.go", "replaceAll": "true"},
		Body:  "<search>x = 1</search><replace>x = 2</replace>",
	}, env)
	if !res.OK {
		t.Fatalf("replaceAll edit failed: %s", res.ErrMsg)
	}
	if readFile(t, full) != "x = 2\nx = 2\n" {
		t.Errorf("file = %q", readFile(t, full))
	}
}

func TestEdit_DestructiveRejected(t *testing.T) {
	env := testEnv(t)
	body := strings.Repeat("keep this line\n", 100)
	full := writeFile(t, env, "big.txt", body)
	res := execEdit(context.Background(), actions.Action{
		Tag:   actions.TagEdit,
		Attrs: map[string]string{"path": "big.txt", "replaceAll": "true"},
		Body:  "<search>keep this line\n</search><replace></replace>",
	}, env)
	if res.ErrCode != kernel.ErrDestructiveRejected {
		t.Fatalf("ErrCode = %q, want DESTRUCTIVE_REJECTED", res.ErrCode)
	}
	if readFile(t, full) != body {
		t.Errorf("rejected edit still modified the file")
	}
}

func TestMultiEdit_Atomic(t *testing.T) {
	env := testEnv(t)
	full := writeFile(t, env, "f.go", "a = 1\nb = 2\n")

	// Second edit fails: nothing may persist.
	res := execMultiEdit(context.Background(), actions.Action{
		Tag:   actions.TagMultiEdit,
		Attrs: map[string]string{"path": "f.go"},
		Body: "<edit><search>a = 1</search><replace>a = 10</replace></edit>" +
			"<edit><search>missing</search><replace>x</replace></edit>",
	}, env)
	if res.OK {
		t.Fatalf("multi-edit with failing member succeeded")
	}
	if readFile(t, full) != "a = 1\nb = 2\n" {
		t.Errorf("partial multi-edit persisted: %q", readFile(t, full))
	}

	res = execMultiEdit(context.Background(), actions.Action{
		Tag:   actions.TagMultiEdit,
		Attrs: map[string]string{"path": "f.go"},
		Body: "<edit><search>a = 1</search><replace>a = 10</replace></edit>" +
			"<edit><search>b = 2</search><replace>b = 20</replace></edit>",
	}, env)
	if !res.OK {
		t.Fatalf("multi-edit failed: %s", res.ErrMsg)
	}
	if readFile(t, full) != "a = 10\nb = 20\n" {
		t.Errorf("file = %q", readFile(t, full))
	}
}

func TestLs_SortedWithDirSuffix(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "b.txt", "")
	os.Mkdir(filepath.Join(env.WorkDir, "adir"), 0o755)

	res := execLs(context.Background(), actions.Action{Tag: actions.TagLs, Attrs: map[string]string{}}, env)
	if !res.OK {
		t.Fatalf("ls failed: %s", res.ErrMsg)
	}
	if res.Output != "adir/\nb.txt" {
		t.Errorf("Output = %q", res.Output)
	}
}
