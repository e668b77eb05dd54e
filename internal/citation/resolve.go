// Package citation resolves inline [bN] block references in chat answers.
package citation

import (
	"regexp"
	"strconv"
	"strings"

	"research-cli/internal/report"
)

var tokenRE = regexp.MustCompile(`\[(b[0-9]+)\]`)

// Marker is one occurrence of a citation token in the answer text.
// Start and End are byte offsets of the token including its brackets.
type Marker struct {
	Token    string
	BlockID  string
	Display  int
	Start    int
	End      int
	Resolved bool
}

// Resolution is the result of scanning one answer.
type Resolution struct {
	Markers []Marker
	// Order lists distinct block ids by display index (Order[0] is index 1).
	Order []string
}

// DisplayIndex returns the display index assigned to a block id.
func (r Resolution) DisplayIndex(blockID string) (int, bool) {
	for i, id := range r.Order {
		if id == blockID {
			return i + 1, true
		}
	}
	return 0, false
}

// BlockFor returns the block id shown with display index n.
func (r Resolution) BlockFor(n int) (string, bool) {
	if n < 1 || n > len(r.Order) {
		return "", false
	}
	return r.Order[n-1], true
}

// Resolve finds every [bN] token in text. Distinct ids receive dense
// 1-based display indices in order of first appearance. A nil index marks
// every marker unresolved.
func Resolve(text string, idx *report.Index) Resolution {
	var n Numbering
	res := Resolution{Markers: n.scan(text, idx)}
	res.Order = n.Order()
	return res
}

// Numbering assigns display indices across the pieces of an answer that is
// rendered as it streams. The zero value is ready to use.
type Numbering struct {
	order []string
	seen  map[string]int
}

// Number returns the display index of id, assigning the next one on first
// use.
func (n *Numbering) Number(id string) int {
	if d, ok := n.seen[id]; ok {
		return d
	}
	if n.seen == nil {
		n.seen = make(map[string]int)
	}
	n.order = append(n.order, id)
	n.seen[id] = len(n.order)
	return len(n.order)
}

// Order lists the ids numbered so far.
func (n *Numbering) Order() []string {
	return append([]string(nil), n.order...)
}

// Render replaces the tokens of one piece of text, continuing the numbering
// of earlier pieces.
func (n *Numbering) Render(text string, idx *report.Index, style Style) string {
	return Render(text, Resolution{Markers: n.scan(text, idx)}, style)
}

func (n *Numbering) scan(text string, idx *report.Index) []Marker {
	var markers []Marker
	for _, loc := range tokenRE.FindAllStringSubmatchIndex(text, -1) {
		id := text[loc[2]:loc[3]]
		_, found := idx.Locate(id)
		markers = append(markers, Marker{
			Token:    text[loc[0]:loc[1]],
			BlockID:  id,
			Display:  n.Number(id),
			Start:    loc[0],
			End:      loc[1],
			Resolved: found,
		})
	}
	return markers
}

// Style renders one marker. The default style writes "[n]".
type Style func(m Marker) string

// Bracketed renders a marker as its display index in brackets.
func Bracketed(m Marker) string {
	return "[" + strconv.Itoa(m.Display) + "]"
}

// Render replaces each token in text with style(marker).
func Render(text string, res Resolution, style Style) string {
	if len(res.Markers) == 0 {
		return text
	}
	if style == nil {
		style = Bracketed
	}
	var b strings.Builder
	last := 0
	for _, m := range res.Markers {
		if m.Start < last || m.End > len(text) {
			continue
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(style(m))
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}
