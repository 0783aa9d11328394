package actions

import (
	"strings"
)

// ParseResult is the outcome of scanning one assistant message.
type ParseResult struct {
	Actions []Action
	// Warnings holds malformed-tag diagnostics; the first entry quotes the
	// offending tag and is surfaced once to the model on the next round.
	Warnings []string
	// FencedTags is true when tag-looking text was found only inside
	// triple-backtick fences. The turn engine uses it to inject the
	// "write tags without backticks" corrective message.
	FencedTags bool
}

// Parse scans assistant text for action tags. Recognition rules:
//   - self-closing `<tag .../>` and paired `<tag>…</tag>` forms
//   - known tag names only; underscore aliases (end_task) are canonicalised
//   - attribute values are double-quoted with backslash escaping
//   - nothing inside a triple-backtick fence is recognised
//
// A malformed known tag is recorded as a warning and skipped; the scan
// continues after the offending `<`.
func Parse(text string) ParseResult {
	p := &parser{text: text}
	p.run()
	res := ParseResult{Actions: p.actions, Warnings: p.warnings}
	if len(p.actions) == 0 && p.sawFencedTag {
		res.FencedTags = true
	}
	return res
}

type parser struct {
	text    string
	pos     int
	inFence bool

	actions      []Action
	warnings     []string
	sawFencedTag bool
}

func (p *parser) run() {
	for p.pos < len(p.text) {
		if p.atFenceMarker() {
			p.inFence = !p.inFence
			p.pos += 3
			continue
		}
		if p.text[p.pos] != '<' {
			p.pos++
			continue
		}
		if p.inFence {
			if name, ok := p.peekTagName(p.pos); ok && IsKnownTag(name) {
				p.sawFencedTag = true
			}
			p.pos++
			continue
		}
		if act, consumed, warn := p.parseTag(p.pos); consumed > 0 {
			if warn != "" {
				p.warnings = append(p.warnings, warn)
			} else {
				p.actions = append(p.actions, act)
			}
			p.pos += consumed
		} else {
			p.pos++
		}
	}
}

// atFenceMarker reports a ``` at the current position.
func (p *parser) atFenceMarker() bool {
	return strings.HasPrefix(p.text[p.pos:], "```")
}

// peekTagName reads the tag name right after `<` without consuming.
// Underscore aliases are canonicalised to their hyphen forms.
func (p *parser) peekTagName(at int) (string, bool) {
	i := at + 1
	start := i
	for i < len(p.text) && isNameChar(p.text[i]) {
		i++
	}
	if i == start {
		return "", false
	}
	return strings.ReplaceAll(p.text[start:i], "_", "-"), true
}

// parseTag attempts to parse a full action tag at p.text[at] == '<'.
// Returns (action, consumed, "") on success, (zero, consumed, warning) for a
// malformed known tag, and (zero, 0, "") when the text is not an action tag.
func (p *parser) parseTag(at int) (Action, int, string) {
	name, ok := p.peekTagName(at)
	if !ok || !IsKnownTag(name) {
		return Action{}, 0, ""
	}
	rawNameEnd := at + 1
	for rawNameEnd < len(p.text) && isNameChar(p.text[rawNameEnd]) {
		rawNameEnd++
	}
	rawName := p.text[at+1 : rawNameEnd]

	i := rawNameEnd
	attrs := map[string]string{}

	for {
		for i < len(p.text) && isSpace(p.text[i]) {
			i++
		}
		if i >= len(p.text) {
			return Action{}, i - at, p.malformed(at, i, "unterminated tag")
		}
		if strings.HasPrefix(p.text[i:], "/>") {
			return Action{Tag: name, Attrs: attrs, SelfClosing: true}, i + 2 - at, ""
		}
		if p.text[i] == '>' {
			i++
			break
		}

		// attribute: name="value"
		attrStart := i
		for i < len(p.text) && isNameChar(p.text[i]) {
			i++
		}
		if i == attrStart || i >= len(p.text) || p.text[i] != '=' {
			return Action{}, i + 1 - at, p.malformed(at, i+1, "bad attribute")
		}
		attrName := p.text[attrStart:i]
		i++ // '='
		if i >= len(p.text) || p.text[i] != '"' {
			return Action{}, i - at, p.malformed(at, i, "attribute value must be double-quoted")
		}
		i++
		val, end, ok := readQuoted(p.text, i)
		if !ok {
			return Action{}, end - at, p.malformed(at, end, "unterminated attribute value")
		}
		attrs[attrName] = val
		i = end
	}

	// Paired form: body runs literally to the first matching close tag.
	closeTag := "</" + rawName + ">"
	rel := strings.Index(p.text[i:], closeTag)
	if rel < 0 {
		return Action{}, i - at, p.malformed(at, i, "missing close tag")
	}
	body := p.text[i : i+rel]
	consumed := i + rel + len(closeTag) - at
	return Action{Tag: name, Attrs: attrs, Body: body}, consumed, ""
}

// malformed builds a warning quoting the offending tag snippet.
func (p *parser) malformed(at, upto int, why string) string {
	if upto > len(p.text) {
		upto = len(p.text)
	}
	snippet := p.text[at:upto]
	if len(snippet) > 120 {
		snippet = snippet[:120] + "…"
	}
	return "malformed action tag (" + why + "): " + snippet
}

// readQuoted reads a double-quoted value starting just after the opening
// quote. Handles \" \\ \n \t \r escapes. Returns the value and the index
// just past the closing quote.
func readQuoted(s string, start int) (string, int, bool) {
	var b strings.Builder
	i := start
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, true
		case '\\':
			if i+1 >= len(s) {
				return "", i + 1, false
			}
			switch s[i+1] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i+1])
			}
			i += 2
			continue
		default:
			b.WriteByte(c)
			i++
			continue
		}
	}
	return "", i, false
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
