package tui

import (
	"strings"

	"research-cli/internal/jobstate"
	"research-cli/internal/protocol"
	"research-cli/internal/service"
)

// ─── Output types ───────────────────────────────────────────────────────────

// OutputType identifies the kind of line the printers emit.
type OutputType int

const (
	OutputPhase       OutputType = iota // Job entered a new phase
	OutputStatus                        // Status message from the pipeline
	OutputQuery                         // Finished search query
	OutputCuration                      // Category announced its documents
	OutputEnrichment                    // Category finished enrichment
	OutputBriefing                      // Category briefing written
	OutputAdvisory                      // Non-fatal notice
	OutputFailure                       // Job failed
	OutputReportReady                   // Final report available
)

// OutputEvent is one line for the model to render. It has no dependency on
// Bubble Tea.
type OutputEvent struct {
	Type     OutputType
	Text     string
	Category string
	Done     int
	Total    int
}

// ─── JobPrinter ─────────────────────────────────────────────────────────────

// JobPrinter compares successive job states and emits the lines worth
// printing: phase changes, finished queries and per-category milestones.
// Counter ticks only update LastStatus for the spinner.
type JobPrinter struct {
	prev       jobstate.Job
	started    bool
	queries    int
	seenStatus map[string]bool
	lastStatus string
}

func NewJobPrinter() *JobPrinter {
	return &JobPrinter{seenStatus: make(map[string]bool)}
}

// LastStatus returns the latest status text for the spinner line.
func (p *JobPrinter) LastStatus() string {
	return p.lastStatus
}

// Update returns the lines describing the change from the previous state.
func (p *JobPrinter) Update(next jobstate.Job) []OutputEvent {
	prev := p.prev
	if !p.started {
		prev = jobstate.NewJob(next.ID, next.Company)
		p.started = true
	}
	p.prev = next.Clone()

	var out []OutputEvent

	if next.Phase != prev.Phase && next.Phase != jobstate.PhaseFailed {
		out = append(out, OutputEvent{Type: OutputPhase, Text: phaseTitle(next.Phase)})
	}

	if msg := strings.TrimSpace(next.StatusMessage); msg != "" && msg != prev.StatusMessage {
		p.lastStatus = msg
		if !p.seenStatus[msg] {
			p.seenStatus[msg] = true
			out = append(out, OutputEvent{Type: OutputStatus, Text: msg})
		}
	}

	for ; p.queries < len(next.Queries); p.queries++ {
		q := next.Queries[p.queries]
		out = append(out, OutputEvent{Type: OutputQuery, Text: q.Text, Category: service.CategoryLabel(q.Category)})
	}

	for _, cat := range sortedCategories(next.DocCounts) {
		c := next.DocCounts[cat]
		if old, ok := prev.DocCounts[cat]; (!ok || old.Initial == 0) && c.Initial > 0 && !c.Inferred {
			out = append(out, OutputEvent{Type: OutputCuration, Category: service.CategoryLabel(cat), Total: c.Initial})
		}
	}

	for _, cat := range sortedCategories(next.EnrichmentCounts) {
		c := next.EnrichmentCounts[cat]
		if c.Complete && !prev.EnrichmentCounts[cat].Complete {
			out = append(out, OutputEvent{Type: OutputEnrichment, Category: service.CategoryLabel(cat), Done: c.Enriched, Total: c.Total})
		}
	}

	for _, cat := range sortedCategories(next.BriefingStatus) {
		if next.BriefingStatus[cat] && !prev.BriefingStatus[cat] {
			out = append(out, OutputEvent{Type: OutputBriefing, Category: service.CategoryLabel(cat)})
		}
	}

	for _, a := range next.Advisories {
		if a.Class == protocol.JobFailure || prev.HasAdvisory(a) {
			continue
		}
		out = append(out, OutputEvent{Type: OutputAdvisory, Text: a.Message})
	}

	if next.Failed() && !prev.Failed() {
		out = append(out, OutputEvent{Type: OutputFailure, Text: next.Error.OrElse("research failed")})
	}

	if next.IsComplete && !prev.IsComplete {
		out = append(out, OutputEvent{Type: OutputReportReady, Text: next.Company})
	}

	return out
}

func phaseTitle(p jobstate.Phase) string {
	switch p {
	case jobstate.PhaseSearch:
		return "Searching the web"
	case jobstate.PhaseEnrichment:
		return "Curating and enriching documents"
	case jobstate.PhaseBriefing:
		return "Writing briefings"
	case jobstate.PhaseComplete:
		return "Research complete"
	default:
		return p.String()
	}
}

func sortedCategories[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	service.SortCategories(keys)
	return keys
}
