package citation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-cli/internal/report"
)

func sampleIndex() *report.Index {
	blocks := make([]report.Block, 0, 5)
	for i := 1; i <= 5; i++ {
		blocks = append(blocks, report.Block{ID: report.BlockID(i), Text: "block"})
	}
	return report.NewIndex(blocks)
}

func TestResolveDisplayIndices(t *testing.T) {
	text := "See [b3] and again [b3], also [b7]"
	res := Resolve(text, sampleIndex())

	require.Len(t, res.Markers, 3)
	assert.Equal(t, []string{"b3", "b7"}, res.Order)

	assert.Equal(t, 1, res.Markers[0].Display)
	assert.Equal(t, 1, res.Markers[1].Display)
	assert.Equal(t, 2, res.Markers[2].Display)

	assert.True(t, res.Markers[0].Resolved)
	assert.False(t, res.Markers[2].Resolved, "b7 is not in the report")

	assert.Equal(t, "[b3]", text[res.Markers[1].Start:res.Markers[1].End])
}

func TestResolveIgnoresOtherBrackets(t *testing.T) {
	res := Resolve("a [1] b [bx] c [B2] d [b] e [b12]", sampleIndex())
	require.Len(t, res.Markers, 1)
	assert.Equal(t, "b12", res.Markers[0].BlockID)
	assert.False(t, res.Markers[0].Resolved)
}

func TestResolveNilIndex(t *testing.T) {
	res := Resolve("[b1]", nil)
	require.Len(t, res.Markers, 1)
	assert.False(t, res.Markers[0].Resolved)
}

func TestResolutionLookups(t *testing.T) {
	res := Resolve("[b4] [b2] [b4]", sampleIndex())

	n, ok := res.DisplayIndex("b2")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	id, ok := res.BlockFor(1)
	assert.True(t, ok)
	assert.Equal(t, "b4", id)

	_, ok = res.BlockFor(3)
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	text := "Revenue grew [b5]. Margins [b2] and [b5]."
	res := Resolve(text, sampleIndex())

	assert.Equal(t, "Revenue grew [1]. Margins [2] and [1].", Render(text, res, nil))

	custom := Render(text, res, func(m Marker) string {
		if !m.Resolved {
			return "?"
		}
		return "<" + m.BlockID + ">"
	})
	assert.Equal(t, "Revenue grew <b5>. Margins <b2> and <b5>.", custom)

	assert.Equal(t, "no refs", Render("no refs", Resolve("no refs", nil), nil))
}

func TestHighlighterActivate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHighlighter(sampleIndex())
	h.now = func() time.Time { return now }

	hl, ok := h.Activate("b2")
	require.True(t, ok)
	assert.Equal(t, 1, hl.Position)
	assert.Equal(t, now.Add(HighlightDuration), hl.Until)
	assert.True(t, h.IsHighlighted("b2"))

	_, ok = h.Activate("b9")
	assert.False(t, ok, "unknown ids are a no-op")
	assert.True(t, h.IsHighlighted("b2"), "a no-op must not clear the current highlight")

	now = now.Add(HighlightDuration)
	assert.False(t, h.IsHighlighted("b2"), "highlight ends after its duration")
}

func TestHighlighterExpireGeneration(t *testing.T) {
	h := NewHighlighter(sampleIndex())

	first, _ := h.Activate("b1")
	second, _ := h.Activate("b3")

	assert.False(t, h.Expire(first.Generation), "a stale expiry must not clear a newer highlight")
	assert.True(t, h.IsHighlighted("b3"))

	assert.True(t, h.Expire(second.Generation))
	_, ok := h.Current()
	assert.False(t, ok)
}

func TestNumberingAcrossPieces(t *testing.T) {
	idx := sampleIndex()
	var n Numbering

	first := n.Render("Revenue grew [b4].", idx, nil)
	second := n.Render("Margins [b2], as noted [b4].", idx, nil)

	assert.Equal(t, "Revenue grew [1].", first)
	assert.Equal(t, "Margins [2], as noted [1].", second)
	assert.Equal(t, []string{"b4", "b2"}, n.Order())
	assert.Equal(t, 1, n.Number("b4"))
	assert.Equal(t, 3, n.Number("b9"))
}
