package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"research-cli/internal/chat"
	"research-cli/internal/citation"
	"research-cli/internal/connection"
	"research-cli/internal/jobstate"
	"research-cli/internal/report"
)

// ─── Welcome Screen ─────────────────────────────────────────────────────────

func renderWelcome(version, server, jobID string) string {
	titleLine := logoTitleStyle.Render("◆ Company Research") + " " + versionStyle.Render("v"+version)

	var infoLine string
	if server == "" {
		infoLine = welcomeHintStyle.Render("Run: research set server <url>")
	} else {
		serverDisplay := server
		if len(serverDisplay) > 40 {
			serverDisplay = serverDisplay[:37] + "..."
		}
		jobDisplay := dimStyle.Render("no job")
		if jobID != "" {
			jobDisplay = "job " + truncateID(jobID)
		}
		infoLine = welcomeInfoLabel.Render(fmt.Sprintf("%s · %s", serverDisplay, jobDisplay))
	}
	hint := welcomeHintStyle.Render("Type /new <company> to start research, or ? for help")
	return fmt.Sprintf("\n%s\n%s\n%s\n", titleLine, infoLine, hint)
}

// ─── Job output ─────────────────────────────────────────────────────────────

// renderOutput turns one printer event into a printable line.
func renderOutput(ev OutputEvent) string {
	switch ev.Type {
	case OutputPhase:
		return "\n" + phaseStyle.Render("  ◆ "+ev.Text)
	case OutputStatus:
		return statusStyle.Render("  ⟳ " + ev.Text)
	case OutputQuery:
		return queryStyle.Render("    🔎 ") + dimStyle.Render(ev.Category+": ") + ev.Text
	case OutputCuration:
		return fmt.Sprintf("    %s %s", categoryStyle.Render(ev.Category), dimStyle.Render(fmt.Sprintf("%d documents to curate", ev.Total)))
	case OutputEnrichment:
		return successMsgStyle.Render("    ✓ ") + categoryStyle.Render(ev.Category) + dimStyle.Render(fmt.Sprintf(" enriched %d/%d", ev.Done, ev.Total))
	case OutputBriefing:
		return successMsgStyle.Render("    ✓ ") + categoryStyle.Render(ev.Category) + dimStyle.Render(" briefing written")
	case OutputAdvisory:
		return warnMsgStyle.Render("  ! " + ev.Text)
	case OutputFailure:
		return errorMsgStyle.Render("  ✗ Research failed: " + ev.Text)
	case OutputReportReady:
		return successMsgStyle.Render("  ✓ Report ready")
	default:
		return ""
	}
}

func connectionText(s connection.State) string {
	switch s {
	case connection.StateOpen:
		return "live"
	case connection.StateConnecting:
		return "connecting"
	case connection.StateClosedRetrying:
		return "reconnecting"
	case connection.StateClosedPolling:
		return "polling"
	default:
		return s.String()
	}
}

func phaseShort(p jobstate.Phase) string {
	if p == jobstate.PhaseIdle {
		return "Starting research..."
	}
	return phaseTitle(p) + "..."
}

// ─── Report ─────────────────────────────────────────────────────────────────

func newMarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	wrap := width - 8
	if wrap < 40 {
		wrap = 40
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
}

// renderBlock renders one report block with its id in the gutter. A
// highlighted block is framed.
func renderBlock(r *glamour.TermRenderer, b report.Block, highlighted bool) string {
	body := b.Text
	if r != nil {
		if out, err := r.Render(b.Text); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	gutter := blockGutterStyle.Render(fmt.Sprintf("%4s ", b.ID))
	if highlighted {
		return gutter + "\n" + highlightStyle.Render(body)
	}
	return gutter + "\n" + body
}

// renderReport renders every block of the report in order, framing the one
// h currently highlights. h may be nil.
func renderReport(r *glamour.TermRenderer, idx *report.Index, h *citation.Highlighter) string {
	var parts []string
	for _, b := range idx.Blocks() {
		parts = append(parts, renderBlock(r, b, h != nil && h.IsHighlighted(b.ID)))
	}
	return strings.Join(parts, "\n")
}

// renderHistory lists the chat thread, one line per message.
func renderHistory(msgs []chat.Message, idx *report.Index) []string {
	var lines []string
	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Content)
		switch {
		case msg.Sender == chat.SenderUser:
			lines = append(lines, userPromptStyle.Render("  ❯ "+excerpt(text, 70)))
		case msg.Failed:
			lines = append(lines, errorMsgStyle.Render("    ✗ "+text))
		default:
			line := "    " + excerpt(citation.Render(text, citation.Resolve(text, idx), nil), 70)
			if msg.Cancelled {
				line += dimStyle.Render(" (cancelled)")
			} else if msg.Streaming {
				line += dimStyle.Render(" …")
			}
			lines = append(lines, line)
		}
	}
	return lines
}

// ─── Citations ──────────────────────────────────────────────────────────────

// citationMarker styles a marker in a streamed answer. Markers for blocks
// the report does not have are struck through.
func citationMarker(m citation.Marker) string {
	label := "[" + strconv.Itoa(m.Display) + "]"
	if !m.Resolved {
		return citationMissingStyle.Render(label)
	}
	return citationStyle.Render(label)
}

// renderSources lists the blocks an answer cited, by display index.
func renderSources(res citation.Resolution, idx *report.Index) []string {
	if len(res.Order) == 0 {
		return nil
	}
	lines := []string{dimStyle.Render("  Sources:")}
	for _, id := range res.Order {
		n, _ := res.DisplayIndex(id)
		b, ok := idx.Get(id)
		if !ok {
			lines = append(lines, citationMissingStyle.Render(fmt.Sprintf("    [%d]", n))+dimStyle.Render(" "+id+" is not in this report"))
			continue
		}
		lines = append(lines, citationStyle.Render(fmt.Sprintf("    [%d]", n))+" "+dimStyle.Render(id+" · "+excerpt(b.Text, 60)))
	}
	lines = append(lines, dimStyle.Render("  /cite <n|bN> shows a source in the report"))
	return lines
}

// excerpt returns the first line of text without markdown markers, cut to n
// runes.
func excerpt(text string, n int) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	line = strings.TrimLeft(line, "#>-* ")
	r := []rune(line)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return line
}

func truncateID(s string) string {
	if len(s) > 20 {
		return s[:8] + "..." + s[len(s)-4:]
	}
	return s
}
