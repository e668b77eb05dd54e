package display

import (
	"fmt"
	"io"
	"strings"
)

const (
	italic    = "\033[3m"
	underline = "\033[4m"
	boldCyan  = "\033[1;36m"
)

// MarkdownPrinter renders streamed markdown line by line as it arrives.
// Text after the last newline is held until more arrives or Flush is called.
type MarkdownPrinter struct {
	w      io.Writer
	buf    string
	inCode bool
	// Inline, when set, rewrites each line outside code blocks before
	// inline styling (citation markers, for example).
	Inline func(line string) string
}

func NewMarkdownPrinter(w io.Writer) *MarkdownPrinter {
	return &MarkdownPrinter{w: w}
}

// Write consumes one fragment of markdown.
func (m *MarkdownPrinter) Write(text string) {
	m.buf += strings.ReplaceAll(text, "\r\n", "\n")
	for {
		idx := strings.IndexByte(m.buf, '\n')
		if idx < 0 {
			return
		}
		line := m.buf[:idx]
		m.buf = m.buf[idx+1:]
		fmt.Fprintln(m.w, m.renderLine(line))
	}
}

// Flush prints any pending partial line.
func (m *MarkdownPrinter) Flush() {
	if m.buf == "" {
		return
	}
	fmt.Fprint(m.w, m.renderLine(m.buf))
	m.buf = ""
}

func (m *MarkdownPrinter) renderLine(line string) string {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		if !m.inCode {
			m.inCode = true
			if lang := strings.TrimSpace(trimmed[3:]); lang != "" {
				return fmt.Sprintf("  %s┌─ %s ─%s", Dim, lang, Reset)
			}
			return fmt.Sprintf("  %s┌──%s", Dim, Reset)
		}
		m.inCode = false
		return fmt.Sprintf("  %s└──%s", Dim, Reset)
	}
	if m.inCode {
		return fmt.Sprintf("  %s│%s %s", Dim, Reset, line)
	}

	if m.Inline != nil {
		line = m.Inline(line)
		trimmed = strings.TrimSpace(line)
	}

	if level, text, ok := heading(trimmed); ok {
		if level <= 2 {
			return fmt.Sprintf("\n  %s%s%s", boldCyan, renderInline(text), Reset)
		}
		return fmt.Sprintf("  %s%s%s", Bold, renderInline(text), Reset)
	}

	if trimmed == "---" || trimmed == "***" || trimmed == "___" {
		return fmt.Sprintf("  %s%s%s", Dim, strings.Repeat("─", 40), Reset)
	}
	if strings.HasPrefix(trimmed, "> ") {
		return fmt.Sprintf("  %s│%s %s", Dim, Reset, renderInline(trimmed[2:]))
	}

	pad := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		return fmt.Sprintf("%s  • %s", pad, renderInline(trimmed[2:]))
	}
	if num, rest, ok := orderedItem(trimmed); ok {
		return fmt.Sprintf("%s  %s. %s", pad, num, renderInline(rest))
	}

	return renderInline(line)
}

// heading splits "## Title" into its level and text.
func heading(s string) (int, string, bool) {
	level := 0
	for level < len(s) && level < 6 && s[level] == '#' {
		level++
	}
	if level == 0 || level >= len(s) || s[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(s[level:]), true
}

func orderedItem(s string) (string, string, bool) {
	dot := strings.Index(s, ". ")
	if dot <= 0 || dot > 3 {
		return "", "", false
	}
	for _, c := range s[:dot] {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	return s[:dot], s[dot+2:], true
}

func renderInline(text string) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], "**"):
			if end := strings.Index(text[i+2:], "**"); end > 0 {
				out.WriteString(Bold + renderInline(text[i+2:i+2+end]) + Reset)
				i += 4 + end
				continue
			}
		case text[i] == '*' && (i == 0 || text[i-1] == ' '):
			if end := strings.IndexByte(text[i+1:], '*'); end > 0 {
				out.WriteString(italic + text[i+1:i+1+end] + Reset)
				i += 2 + end
				continue
			}
		case text[i] == '`':
			if end := strings.IndexByte(text[i+1:], '`'); end >= 0 {
				out.WriteString(Dim + text[i+1:i+1+end] + Reset)
				i += 2 + end
				continue
			}
		case text[i] == '[':
			if label, url, n, ok := link(text[i:]); ok {
				out.WriteString(underline + label + Reset + Dim + " (" + url + ")" + Reset)
				i += n
				continue
			}
		}
		out.WriteByte(text[i])
		i++
	}
	return out.String()
}

// link parses "[label](url)" at the start of s and returns its length.
func link(s string) (string, string, int, bool) {
	cb := strings.IndexByte(s, ']')
	if cb <= 1 || cb+1 >= len(s) || s[cb+1] != '(' {
		return "", "", 0, false
	}
	cp := strings.IndexByte(s[cb+1:], ')')
	if cp <= 0 {
		return "", "", 0, false
	}
	return s[1:cb], s[cb+2 : cb+1+cp], cb + 1 + cp + 1, true
}

// RenderMarkdown renders a complete document.
func RenderMarkdown(text string) string {
	var m MarkdownPrinter
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = m.renderLine(line)
	}
	return strings.Join(lines, "\n")
}
