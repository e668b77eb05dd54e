package citation

import (
	"time"

	"research-cli/internal/report"
)

// HighlightDuration is how long an activated block stays highlighted.
const HighlightDuration = 1200 * time.Millisecond

// Highlight is the currently highlighted block. Generation increases on every
// activation so a stale expiry can be told apart from the current one.
type Highlight struct {
	BlockID    string
	Position   int
	Generation int
	Until      time.Time
}

// Highlighter tracks which report block is highlighted.
type Highlighter struct {
	index   *report.Index
	current *Highlight
	gen     int
	now     func() time.Time
}

// NewHighlighter returns a highlighter over the blocks of one report.
func NewHighlighter(idx *report.Index) *Highlighter {
	return &Highlighter{index: idx, now: time.Now}
}

// Activate highlights the block with id. References to blocks absent from
// the report are no-ops and return false.
func (h *Highlighter) Activate(id string) (Highlight, bool) {
	pos, ok := h.index.Locate(id)
	if !ok {
		return Highlight{}, false
	}
	h.gen++
	hl := Highlight{
		BlockID:    id,
		Position:   pos,
		Generation: h.gen,
		Until:      h.now().Add(HighlightDuration),
	}
	h.current = &hl
	return hl, true
}

// Expire clears the highlight if generation is still the current one.
func (h *Highlighter) Expire(generation int) bool {
	if h.current == nil || h.current.Generation != generation {
		return false
	}
	h.current = nil
	return true
}

// Current returns the active highlight, dropping it once its time is up.
func (h *Highlighter) Current() (Highlight, bool) {
	if h.current == nil {
		return Highlight{}, false
	}
	if !h.now().Before(h.current.Until) {
		h.current = nil
		return Highlight{}, false
	}
	return *h.current, true
}

// IsHighlighted reports whether the block with id is highlighted.
func (h *Highlighter) IsHighlighted(id string) bool {
	hl, ok := h.Current()
	return ok && hl.BlockID == id
}
