package executors

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/kernel"
)

// grepMaxMatches caps output so one grep cannot flood the context.
const grepMaxMatches = 200

// skipDirs are never descended into during grep/glob walks.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".slashbot": true,
}

func execGrep(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	pattern := act.Attr("pattern")
	if pattern == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "grep requires a pattern attribute")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, fmt.Sprintf("bad pattern: %v", err))
	}
	root := resolvePath(env, act.Attr("path"))
	if root == "" {
		root = env.WorkDir
	}
	include := act.Attr("include")

	var matches []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := path.Match(include, d.Name()); !ok {
				return nil
			}
		}
		data, err := os.ReadFile(p)
		if err != nil || !isText(data) {
			return nil
		}
		rel, _ := filepath.Rel(env.WorkDir, p)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
				if len(matches) >= grepMaxMatches {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return kernel.ErrorResult(kernel.ErrIO, walkErr.Error())
	}
	if len(matches) == 0 {
		return kernel.NewResult("no matches")
	}
	out := strings.Join(matches, "\n")
	if len(matches) >= grepMaxMatches {
		out += fmt.Sprintf("\n(stopped at %d matches)", grepMaxMatches)
	}
	res := kernel.NewResult(out)
	res.ForUser = fmt.Sprintf("Grep %q (%d matches)", pattern, len(matches))
	return res
}

func execGlob(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	pattern := act.Attr("pattern")
	if pattern == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "glob requires a pattern attribute")
	}
	root := resolvePath(env, act.Attr("path"))
	if root == "" {
		root = env.WorkDir
	}

	var found []string
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if globMatch(pattern, filepath.ToSlash(rel)) {
			found = append(found, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(found)
	if len(found) == 0 {
		return kernel.NewResult("no files match")
	}
	res := kernel.NewResult(strings.Join(found, "\n"))
	res.ForUser = fmt.Sprintf("Glob %q (%d files)", pattern, len(found))
	return res
}

// globMatch matches slash-separated paths with ** crossing separators.
func globMatch(pattern, name string) bool {
	pparts := strings.Split(pattern, "/")
	nparts := strings.Split(name, "/")
	return globSegments(pparts, nparts)
}

func globSegments(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(name); i++ {
			if globSegments(pat[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	ok, _ := path.Match(pat[0], name[0])
	return ok && globSegments(pat[1:], name[1:])
}

// isText rejects binary files by checking for NUL in the first KB.
func isText(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
