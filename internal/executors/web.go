package executors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/slashbot/slashbot/internal/actions"
	"github.com/slashbot/slashbot/internal/kernel"
)

// fetchMaxBytes caps a fetched document before truncation even sees it.
const fetchMaxBytes = 512 * 1024

var httpClient = &http.Client{Timeout: 30 * time.Second}

func execFetch(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	target := act.Attr("url")
	if target == "" {
		target = strings.TrimSpace(act.Body)
	}
	if target == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "fetch requires a url")
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return kernel.ErrorResult(kernel.ErrForbidden, "only http(s) urls can be fetched")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, err.Error())
	}
	req.Header.Set("User-Agent", "slashbot/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return kernel.ErrorResult(kernel.ErrTimeout, "fetch cancelled or timed out")
		}
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text = stripHTML(text)
	}
	if resp.StatusCode >= 400 {
		return kernel.ErrorResult(kernel.ErrIO,
			fmt.Sprintf("fetch %s: status %d", target, resp.StatusCode)).WithRaw(text)
	}
	res := kernel.NewResult(text)
	res.ForUser = fmt.Sprintf("Fetched %s (%d bytes)", target, len(body))
	return res
}

// execSearch queries the configured search endpoint with q as a parameter
// and returns its plain-text response.
func execSearch(ctx context.Context, act actions.Action, env *Env) *kernel.Result {
	query := act.Attr("query")
	if query == "" {
		query = strings.TrimSpace(act.Body)
	}
	if query == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "search requires a query")
	}
	if env.SearchURL == "" {
		return kernel.ErrorResult(kernel.ErrNotFound, "no search endpoint configured").
			WithHint("set search.url in config, or use fetch with a direct url")
	}

	target := env.SearchURL + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrUnknown, err.Error())
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return kernel.ErrorResult(kernel.ErrIO, err.Error())
	}
	res := kernel.NewResult(stripHTML(string(body)))
	res.ForUser = fmt.Sprintf("Searched %q", query)
	return res
}

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// stripHTML is a rough text extraction; enough for the model to read a page.
func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		b.WriteString(strings.TrimSpace(line))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(b.String(), "\n\n"))
}
