// Command segmentpreview prints how a report is split into citable blocks.
// With an answer as second argument it also shows how the answer's [bN]
// markers resolve against those blocks.
//
//	go run ./cmd/segmentpreview report.md ["Growth [b2] ..."]
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"research-cli/internal/citation"
	"research-cli/internal/report"
)

const (
	orange = "\033[38;2;242;140;40m"
	gray   = "\033[38;5;242m"
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: segmentpreview <report.md|-> [answer]")
		os.Exit(2)
	}

	text, err := readReport(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	blocks := report.Segment(text)
	fmt.Println()
	fmt.Printf("%s═══ %d blocks ═══%s\n", bold, len(blocks), reset)
	for _, b := range blocks {
		fmt.Println()
		lines := strings.Split(b.Text, "\n")
		for i, line := range lines {
			gutter := ""
			if i == 0 {
				gutter = b.ID
			}
			fmt.Printf("%s%4s%s %s│%s %s\n", orange, gutter, reset, gray, reset, line)
		}
	}

	if len(os.Args) < 3 {
		return
	}
	answer := strings.Join(os.Args[2:], " ")
	idx := report.NewIndex(blocks)
	res := citation.Resolve(answer, idx)

	fmt.Println()
	fmt.Printf("%s═══ answer ═══%s\n\n", bold, reset)
	fmt.Println(citation.Render(answer, res, citation.Bracketed))
	fmt.Println()
	for i, id := range res.Order {
		status := "ok"
		if _, ok := idx.Locate(id); !ok {
			status = "missing"
		}
		fmt.Printf("  %s[%d]%s %s %s%s%s\n", orange, i+1, reset, id, dim, status, reset)
	}
}

func readReport(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
