package tui

import (
	"bytes"
	"strings"

	"research-cli/internal/citation"
	"research-cli/internal/display"
	"research-cli/internal/report"
)

// AnswerPrinter turns successive snapshots of a streaming answer into
// rendered lines. Citation markers get display numbers in order of first
// appearance; the partial last line is held until it ends or Flush.
type AnswerPrinter struct {
	out       bytes.Buffer
	md        *display.MarkdownPrinter
	numbering citation.Numbering
	index     *report.Index
	printed   int
}

func NewAnswerPrinter(idx *report.Index) *AnswerPrinter {
	p := &AnswerPrinter{index: idx}
	p.md = display.NewMarkdownPrinter(&p.out)
	p.md.Inline = func(line string) string {
		return p.numbering.Render(line, p.index, citationMarker)
	}
	return p
}

// Update consumes the full answer content seen so far and returns the lines
// completed since the last call.
func (p *AnswerPrinter) Update(content string) []string {
	if len(content) <= p.printed {
		return nil
	}
	p.md.Write(content[p.printed:])
	p.printed = len(content)
	return p.drain()
}

// Flush returns the held partial line, if any.
func (p *AnswerPrinter) Flush() []string {
	p.md.Flush()
	return p.drain()
}

// Resolution describes the citations printed so far.
func (p *AnswerPrinter) Resolution() citation.Resolution {
	return citation.Resolution{Order: p.numbering.Order()}
}

func (p *AnswerPrinter) drain() []string {
	if p.out.Len() == 0 {
		return nil
	}
	text := strings.TrimSuffix(p.out.String(), "\n")
	p.out.Reset()
	return strings.Split(text, "\n")
}
