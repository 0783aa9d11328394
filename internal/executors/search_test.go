package executors

import (
	"context"
	"strings"
	"testing"

	"github.com/slashbot/slashbot/internal/actions"
)

func TestGrep_MatchesWithLineNumbers(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "a.go", "package main\nfunc Hello() {}\n")
	writeFile(t, env, "b.txt", "hello world\n")

	res := execGrep(context.Background(), actions.Action{
		Tag:   actions.TagGrep,
		Attrs: map[string]string{"pattern": "Hello", "include": "*.go"},
	}, env)
	if !res.OK {
		t.Fatalf("grep failed: %s", res.ErrMsg)
	}
	if res.Output != "a.go:2:func Hello() {}" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestGrep_NoMatches(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "a.txt", "nothing here\n")
	res := execGrep(context.Background(), actions.Action{
		Tag:   actions.TagGrep,
		Attrs: map[string]string{"pattern": "absent"},
	}, env)
	if !res.OK || res.Output != "no matches" {
		t.Errorf("grep = {ok:%v, out:%q}", res.OK, res.Output)
	}
}

func TestGlob_DoubleStar(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env, "main.go", "")
	writeFile(t, env, "sub/inner.go", "")
	writeFile(t, env, "sub/notes.md", "")

	res := execGlob(context.Background(), actions.Action{
		Tag:   actions.TagGlob,
		Attrs: map[string]string{"pattern": "**/*.go"},
	}, env)
	if !res.OK {
		t.Fatalf("glob failed: %s", res.ErrMsg)
	}
	want := "main.go\nsub/inner.go"
	if res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "sub/main.go", false},
		{"**/*.go", "a/b/c.go", true},
		{"**/*.go", "c.go", true},
		{"cmd/**", "cmd/root.go", true},
		{"cmd/**", "internal/x.go", false},
	}
	for _, tc := range cases {
		if got := globMatch(tc.pattern, tc.name); got != tc.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestSection_Extraction(t *testing.T) {
	body := "<search>old text</search><replace>new text</replace>"
	if got, ok := section(body, "search"); !ok || got != "old text" {
		t.Errorf("section(search) = %q, %v", got, ok)
	}
	if got, ok := section(body, "replace"); !ok || got != "new text" {
		t.Errorf("section(replace) = %q, %v", got, ok)
	}
	if _, ok := section(body, "missing"); ok {
		t.Errorf("section(missing) found")
	}
}

func TestSplitTarget(t *testing.T) {
	if c, id := splitTarget("telegram:12345"); c != "telegram" || id != "12345" {
		t.Errorf("splitTarget = %q, %q", c, id)
	}
	if c, id := splitTarget("someone"); c != "cli" || id != "someone" {
		t.Errorf("bare target = %q, %q", c, id)
	}
}

func TestStripHTML(t *testing.T) {
	html := "<html><head><style>p{color:red}</style></head><body><p>Hello</p><script>x()</script><p>World</p></body></html>"
	got := stripHTML(html)
	if strings.Contains(got, "color:red") || strings.Contains(got, "x()") {
		t.Errorf("script/style leaked: %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "World") {
		t.Errorf("text lost: %q", got)
	}
}
