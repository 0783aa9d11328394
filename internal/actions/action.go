// Package actions defines the structured action model and the fence-aware
// tag parser. Actions are the only channel through which the model drives
// the host: `<tag attr="value">body</tag>` or `<tag attr="value"/>` emitted
// inside assistant text, outside triple-backtick fences.
package actions

import (
	"fmt"
	"sort"
	"strings"
)

// Known action tag names. Anything else in angle brackets is prose.
const (
	TagBash           = "bash"
	TagRead           = "read"
	TagEdit           = "edit"
	TagMultiEdit      = "multi-edit"
	TagWrite          = "write"
	TagGlob           = "glob"
	TagGrep           = "grep"
	TagLs             = "ls"
	TagGit            = "git"
	TagFetch          = "fetch"
	TagSearch         = "search"
	TagFormat         = "format"
	TagTypecheck      = "typecheck"
	TagSchedule       = "schedule"
	TagNotify         = "notify"
	TagSkill          = "skill"
	TagSkillInstall   = "skill-install"
	TagSayMessage     = "say-message"
	TagEndTask        = "end-task"
	TagContinueTask   = "continue-task"
	TagAgentSend      = "agent-send"
	TagTelegramConfig = "telegram-config"
	TagDiscordConfig  = "discord-config"
)

// knownTags is the closed set of recognised tag names.
var knownTags = map[string]bool{
	TagBash: true, TagRead: true, TagEdit: true, TagMultiEdit: true,
	TagWrite: true, TagGlob: true, TagGrep: true, TagLs: true, TagGit: true,
	TagFetch: true, TagSearch: true, TagFormat: true, TagTypecheck: true,
	TagSchedule: true, TagNotify: true, TagSkill: true, TagSkillInstall: true,
	TagSayMessage: true, TagEndTask: true, TagContinueTask: true,
	TagAgentSend: true, TagTelegramConfig: true, TagDiscordConfig: true,
}

// IsKnownTag reports whether name is a recognised action tag.
func IsKnownTag(name string) bool { return knownTags[name] }

// Action is one parsed tag. Attrs holds attribute values verbatim
// (escapes already resolved); Body is the literal text between the open
// and close tags, empty for self-closing forms.
type Action struct {
	Tag         string
	Attrs       map[string]string
	Body        string
	SelfClosing bool
}

// Attr returns an attribute value or "".
func (a Action) Attr(name string) string {
	return a.Attrs[name]
}

// IsExploration reports whether the action belongs to the explore group
// (results aggregated in the UI's live Explore block).
func (a Action) IsExploration() bool {
	switch a.Tag {
	case TagGrep, TagGlob, TagLs, TagRead:
		return true
	}
	return false
}

// Summary renders a one-line description of the action for the context feed
// and user display, e.g. `read f.go` or `bash "go vet ./..."`.
func (a Action) Summary() string {
	switch a.Tag {
	case TagBash, TagGit:
		body := strings.TrimSpace(a.Body)
		if body == "" {
			body = a.Attr("cmd")
		}
		return fmt.Sprintf("%s %q", a.Tag, firstLine(body))
	case TagEndTask, TagContinueTask:
		return a.Tag
	default:
		if p := a.Attr("path"); p != "" {
			return a.Tag + " " + p
		}
		if p := a.Attr("pattern"); p != "" {
			return fmt.Sprintf("%s %q", a.Tag, p)
		}
		if to := a.Attr("to"); to != "" {
			return a.Tag + " → " + to
		}
		return a.Tag
	}
}

// Serialize renders the action back to its tag form. Attributes are emitted
// in sorted key order so serialization is deterministic; Parse(Serialize(a))
// round-trips.
func (a Action) Serialize() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(a.Tag)

	keys := make([]string, 0, len(a.Attrs))
	for k := range a.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		quoteAttr(&b, a.Attrs[k])
	}

	if a.SelfClosing {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteByte('>')
	b.WriteString(a.Body)
	b.WriteString("</")
	b.WriteString(a.Tag)
	b.WriteByte('>')
	return b.String()
}

// quoteAttr writes a double-quoted attribute value using only the escape
// sequences the parser resolves; all other bytes pass through verbatim.
func quoteAttr(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
