// Package report splits a finished research report into addressable blocks.
package report

import (
	"strconv"
	"strings"
)

// Block is one addressable segment of the report markdown.
type Block struct {
	ID   string
	Text string
}

// BlockID returns the id of the n-th block (1-based).
func BlockID(n int) string {
	return "b" + strconv.Itoa(n)
}

// Segment splits markdown into blocks. A heading starts a new block when the
// current one already has content; a blank line ends a block unless the block
// holds nothing but its heading yet, so a heading stays with its first
// paragraph. Fenced code is never split. Empty blocks are dropped.
func Segment(markdown string) []Block {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	var (
		blocks  []Block
		current []string
		inFence bool
		fence   string
	)

	flush := func() {
		text := strings.Join(trimBlankEdges(current), "\n")
		current = current[:0]
		if strings.TrimSpace(text) == "" {
			return
		}
		blocks = append(blocks, Block{ID: BlockID(len(blocks) + 1), Text: text})
	}

	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			current = append(current, line)
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
			}
			continue
		}
		if marker := fenceMarker(trimmed); marker != "" {
			inFence = true
			fence = marker
			current = append(current, line)
			continue
		}

		switch {
		case isHeading(trimmed):
			if hasContent(current) {
				flush()
			}
			current = append(current, line)
		case trimmed == "":
			if headingOnly(current) {
				current = append(current, line)
				continue
			}
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()

	return blocks
}

func isHeading(trimmed string) bool {
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return false
	}
	return level == len(trimmed) || trimmed[level] == ' ' || trimmed[level] == '\t'
}

func fenceMarker(trimmed string) string {
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	}
	return ""
}

func hasContent(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

// headingOnly reports whether the non-blank lines so far are a single heading.
func headingOnly(lines []string) bool {
	seen := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if !isHeading(t) {
			return false
		}
		seen++
	}
	return seen == 1
}

func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
