package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"research-cli/internal/connection"
	"research-cli/internal/jobstate"
	"research-cli/internal/protocol"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"
)

func Header(text string) {
	fmt.Printf("\n%s%s%s\n", Bold+Cyan, text, Reset)
	fmt.Println(strings.Repeat("─", min(len(text)+4, 80)))
}

func SubHeader(text string) {
	fmt.Printf("%s%s%s\n", Bold+White, text, Reset)
}

func Success(text string) {
	fmt.Printf("%s✓%s %s\n", Green, Reset, text)
}

func Error(text string) {
	fmt.Fprintf(os.Stderr, "%s✗%s %s\n", Red, Reset, text)
}

func Warn(text string) {
	fmt.Printf("%s!%s %s\n", Yellow, Reset, text)
}

func Info(label, value string) {
	fmt.Printf("  %s%-20s%s %s\n", Dim, label, Reset, value)
}

func Spinner(text string) {
	fmt.Printf("\r%s⟳%s %s", Yellow, Reset, text)
}

func ClearLine() {
	fmt.Print("\r\033[K")
}

// PhaseLabel colours a job phase.
func PhaseLabel(p jobstate.Phase) string {
	labels := map[jobstate.Phase]string{
		jobstate.PhaseIdle:       Gray + "Waiting" + Reset,
		jobstate.PhaseSearch:     Blue + "🔎 Searching" + Reset,
		jobstate.PhaseEnrichment: Magenta + "📚 Enriching" + Reset,
		jobstate.PhaseBriefing:   Yellow + "📝 Briefing" + Reset,
		jobstate.PhaseComplete:   Green + "✓ Complete" + Reset,
		jobstate.PhaseFailed:     Red + "✗ Failed" + Reset,
	}
	if label, ok := labels[p]; ok {
		return label
	}
	return Gray + p.String() + Reset
}

// ConnectionLabel colours a connection state.
func ConnectionLabel(s connection.State) string {
	labels := map[connection.State]string{
		connection.StateClosed:         Gray + "Disconnected" + Reset,
		connection.StateConnecting:     Yellow + "⟳ Connecting" + Reset,
		connection.StateOpen:           Green + "● Live" + Reset,
		connection.StateClosedRetrying: Yellow + "⟳ Reconnecting" + Reset,
		connection.StateClosedPolling:  Yellow + "◌ Polling" + Reset,
		connection.StateClosedFailed:   Red + "✗ Closed" + Reset,
	}
	if label, ok := labels[s]; ok {
		return label
	}
	return s.String()
}

// AdvisoryLine formats a notice; fatal classes are red.
func AdvisoryLine(a protocol.Advisory) string {
	if a.Class.Fatal() {
		return fmt.Sprintf("%s✗%s %s", Red, Reset, a.Message)
	}
	return fmt.Sprintf("%s!%s %s", Yellow, Reset, a.Message)
}

// ProgressBar draws done/total as a fixed-width bar.
func ProgressBar(done, total, width int) string {
	if width <= 0 {
		width = 20
	}
	if total <= 0 {
		return Dim + strings.Repeat("░", width) + Reset
	}
	filled := done * width / total
	filled = max(0, min(filled, width))
	return Green + strings.Repeat("█", filled) + Reset + Dim + strings.Repeat("░", width-filled) + Reset
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
