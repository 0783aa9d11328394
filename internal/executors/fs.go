package executors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/pkg/protocol"
)

// defaultReadLimit caps the lines a read returns when no limit is given.
const defaultReadLimit = 2000

// destructiveShare rejects an edit that deletes more than this fraction
// of the file in one step.
const destructiveShare = 0.8

// resolvePath anchors a relative action path at the env work directory.
func resolvePath(env *Env, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(env.WorkDir, p)
}

func execRead(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	path := act.Attr("path")
	if path == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "read requires a path attribute")
	}
	data, err := os.ReadFile(resolvePath(env, path))
	if err != nil {
		if os.IsNotExist(err) {
			return kernel.ErrorResult(kernel.ErrNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}

	lines := strings.Split(string(data), "\n")
	offset := atoiDefault(act.Attr("offset"), 0)
	limit := atoiDefault(act.Attr("limit"), defaultReadLimit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return kernel.ErrorResult(kernel.ErrNotFound,
			fmt.Sprintf("offset %d past end of file (%d lines)", offset, len(lines)))
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}

	slice := strings.Join(lines[offset:end], "\n")
	res := kernel.NewResult(slice)
	res.ForUser = fmt.Sprintf("Read %s (%d lines)", path, end-offset)
	return res
}

func execWrite(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	path := act.Attr("path")
	if path == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "write requires a path attribute")
	}
	full := resolvePath(env, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	if err := os.WriteFile(full, []byte(act.Body), 0o644); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	res := kernel.NewResult(fmt.Sprintf("wrote %d bytes to %s", len(act.Body), path))
	res.ForUser = "Wrote " + path
	return res
}

// editSpec is one search/replace pair extracted from a tag body.
type editSpec struct {
	search     string
	replace    string
	replaceAll bool
}

// parseEditBody extracts <search>…</search><replace>…</replace> from an
// edit body. The replace section may be empty (pure deletion).
func parseEditBody(body string) (editSpec, error) {
	search, ok := section(body, "search")
	if !ok {
		return editSpec{}, fmt.Errorf("missing <search> section")
	}
	replace, ok := section(body, "replace")
	if !ok {
		return editSpec{}, fmt.Errorf("missing <replace> section")
	}
	return editSpec{search: search, replace: replace}, nil
}

// section returns the literal text between <name> and </name>.
func section(body, name string) (string, bool) {
	open, close := "<"+name+">", "</"+name+">"
	i := strings.Index(body, open)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(open):]
	j := strings.Index(rest, close)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// applyEdit applies one spec to content by exact character match.
func applyEdit(content string, spec editSpec) (string, *kernel.Result) {
	n := strings.Count(content, spec.search)
	if spec.search == "" || n == 0 {
		return "", kernel.ErrorResult(kernel.ErrPatternNotFound, "search text not found in file").
			WithHint("re-read the file; the search must match exactly, including whitespace")
	}
	if n > 1 && !spec.replaceAll {
		return "", kernel.ErrorResult(kernel.ErrAmbiguous,
			fmt.Sprintf("search text matches %d locations", n)).
			WithHint(`extend the search with surrounding lines, or set replaceAll="true"`)
	}
	if spec.replaceAll {
		return strings.ReplaceAll(content, spec.search, spec.replace), nil
	}
	return strings.Replace(content, spec.search, spec.replace, 1), nil
}

// rejectDestructive blocks edits whose deletion exceeds the allowed share
// of the original file.
func rejectDestructive(before, after string) *kernel.Result {
	if len(before) == 0 {
		return nil
	}
	deleted := len(before) - len(after)
	if float64(deleted) > destructiveShare*float64(len(before)) {
		return kernel.ErrorResult(kernel.ErrDestructiveRejected,
			fmt.Sprintf("edit would delete %d of %d bytes", deleted, len(before))).
			WithHint("split the change into smaller edits, or use write to replace the file deliberately")
	}
	return nil
}

func execEdit(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	path := act.Attr("path")
	if path == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "edit requires a path attribute")
	}
	spec, err := parseEditBody(act.Body)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrPatternNotFound, err.Error())
	}
	spec.replaceAll = act.Attr("replaceAll") == "true"

	full := resolvePath(env, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, fmt.Sprintf("file not found: %s", path))
	}
	before := string(data)

	after, fail := applyEdit(before, spec)
	if fail != nil {
		return fail
	}
	if fail := rejectDestructive(before, after); fail != nil {
		return fail
	}
	if err := os.WriteFile(full, []byte(after), 0o644); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}

	if env.Events != nil {
		env.Events.Broadcast(bus.Event{Name: protocol.EventEditApplied, Payload: bus.EditAppliedPayload{
			Path:          path,
			BeforeContent: before,
			AfterContent:  after,
		}})
	}
	res := kernel.NewResult(fmt.Sprintf("edited %s", path))
	res.ForUser = "Edited " + path
	return res
}

func execMultiEdit(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	path := act.Attr("path")
	if path == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "multi-edit requires a path attribute")
	}
	full := resolvePath(env, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, fmt.Sprintf("file not found: %s", path))
	}
	before := string(data)

	// All edits apply to one in-memory copy; any failure persists nothing.
	content := before
	applied := 0
	for rest := act.Body; ; applied++ {
		block, ok := section(rest, "edit")
		if !ok {
			break
		}
		spec, err := parseEditBody(block)
		if err != nil {
			return kernel.ErrorResult(kernel.ErrPatternNotFound,
				fmt.Sprintf("edit %d: %v", applied+1, err))
		}
		next, fail := applyEdit(content, spec)
		if fail != nil {
			fail.ErrMsg = fmt.Sprintf("edit %d: %s", applied+1, fail.ErrMsg)
			return fail
		}
		content = next
		rest = rest[strings.Index(rest, "</edit>")+len("</edit>"):]
	}
	if applied == 0 {
		return kernel.ErrorResult(kernel.ErrPatternNotFound, "multi-edit body contains no <edit> sections")
	}
	if fail := rejectDestructive(before, content); fail != nil {
		return fail
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}

	if env.Events != nil {
		env.Events.Broadcast(bus.Event{Name: protocol.EventEditApplied, Payload: bus.EditAppliedPayload{
			Path:          path,
			BeforeContent: before,
			AfterContent:  content,
		}})
	}
	res := kernel.NewResult(fmt.Sprintf("applied %d edits to %s", applied, path))
	res.ForUser = fmt.Sprintf("Edited %s (%d changes)", path, applied)
	return res
}

func execLs(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	path := act.Attr("path")
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(resolvePath(env, path))
	if err != nil {
		return kernel.ErrorResult(kernel.ErrNotFound, err.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	res := kernel.NewResult(strings.Join(names, "\n"))
	res.ForUser = fmt.Sprintf("Listed %s (%d entries)", path, len(names))
	return res
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
