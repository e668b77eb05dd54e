package tui

import (
	"strings"
	"testing"

	"github.com/samber/mo"

	"research-cli/internal/jobstate"
	"research-cli/internal/protocol"
)

func typesOf(events []OutputEvent) []OutputType {
	out := make([]OutputType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestJobPrinterPhasesAndMilestones(t *testing.T) {
	p := NewJobPrinter()
	job := jobstate.NewJob("job-1", "Acme")

	if got := p.Update(job); len(got) != 0 {
		t.Errorf("fresh job printed %v", got)
	}

	job.Phase = jobstate.PhaseSearch
	job.StatusMessage = "Generating queries"
	job.Queries = []jobstate.Query{{Text: "acme products", Number: 1, Category: "company"}}
	got := p.Update(job)
	want := []OutputType{OutputPhase, OutputStatus, OutputQuery}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", typesOf(got), want)
	}
	if got[0].Text != "Searching the web" || got[2].Category != "Company" {
		t.Errorf("events = %+v", got)
	}
	if p.LastStatus() != "Generating queries" {
		t.Errorf("LastStatus = %q", p.LastStatus())
	}

	// Unchanged state prints nothing.
	if got := p.Update(job.Clone()); len(got) != 0 {
		t.Errorf("repeat printed %v", typesOf(got))
	}

	job = job.Clone()
	job.Phase = jobstate.PhaseEnrichment
	job.DocCounts = map[string]jobstate.DocCount{
		"news_data":    {Initial: 5},
		"company_data": {Initial: 8},
		"guess_data":   {Initial: 1, Kept: 1, Inferred: true},
	}
	job.EnrichmentCounts = map[string]jobstate.EnrichmentCount{"company": {Total: 8, Enriched: 3}}
	got = p.Update(job)
	if len(got) != 3 || got[0].Type != OutputPhase || got[1].Category != "Company" || got[2].Category != "News" {
		t.Errorf("curation events = %+v", got)
	}

	job = job.Clone()
	job.EnrichmentCounts["company"] = jobstate.EnrichmentCount{Total: 8, Enriched: 8, Complete: true}
	got = p.Update(job)
	if len(got) != 1 || got[0].Type != OutputEnrichment || got[0].Done != 8 || got[0].Total != 8 {
		t.Errorf("enrichment events = %+v", got)
	}

	job = job.Clone()
	job.Phase = jobstate.PhaseBriefing
	job.BriefingStatus = map[string]bool{"company": true, "news": false}
	got = p.Update(job)
	if len(got) != 2 || got[1].Type != OutputBriefing || got[1].Category != "Company" {
		t.Errorf("briefing events = %+v", got)
	}

	job = job.Clone()
	job.Phase = jobstate.PhaseComplete
	job.IsComplete = true
	got = p.Update(job)
	if len(got) != 2 || got[0].Type != OutputPhase || got[1].Type != OutputReportReady {
		t.Errorf("completion events = %v", typesOf(got))
	}
}

func TestJobPrinterRepeatedStatusPrintedOnce(t *testing.T) {
	p := NewJobPrinter()
	job := jobstate.NewJob("job-1", "Acme")
	for _, msg := range []string{"Working", "Still working", "Working"} {
		job = job.Clone()
		job.StatusMessage = msg
		p.Update(job)
	}
	if p.LastStatus() != "Working" {
		t.Errorf("LastStatus = %q", p.LastStatus())
	}

	p2 := NewJobPrinter()
	var statuses []string
	for _, msg := range []string{"Working", "Still working", "Working"} {
		job = job.Clone()
		job.StatusMessage = msg
		for _, ev := range p2.Update(job) {
			if ev.Type == OutputStatus {
				statuses = append(statuses, ev.Text)
			}
		}
	}
	if strings.Join(statuses, "|") != "Working|Still working" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestJobPrinterFailure(t *testing.T) {
	p := NewJobPrinter()
	job := jobstate.NewJob("job-1", "Acme")
	job.Phase = jobstate.PhaseSearch
	p.Update(job)

	job = job.Clone()
	job.Phase = jobstate.PhaseFailed
	job.Error = mo.Some("site unreachable")
	job.Advisories = []protocol.Advisory{
		{Class: protocol.ConnectionError, Message: "Live updates interrupted"},
		{Class: protocol.JobFailure, Message: "site unreachable"},
	}
	got := p.Update(job)
	want := []OutputType{OutputAdvisory, OutputFailure}
	if len(got) != 2 || got[0].Type != want[0] || got[1].Type != want[1] {
		t.Fatalf("events = %v, want %v", typesOf(got), want)
	}
	if got[1].Text != "site unreachable" {
		t.Errorf("failure text = %q", got[1].Text)
	}

	// Advisories already printed are not repeated.
	if again := p.Update(job.Clone()); len(again) != 0 {
		t.Errorf("repeat printed %v", typesOf(again))
	}
}

func TestPhaseTitle(t *testing.T) {
	tests := map[jobstate.Phase]string{
		jobstate.PhaseSearch:     "Searching the web",
		jobstate.PhaseEnrichment: "Curating and enriching documents",
		jobstate.PhaseBriefing:   "Writing briefings",
		jobstate.PhaseComplete:   "Research complete",
	}
	for p, want := range tests {
		if got := phaseTitle(p); got != want {
			t.Errorf("phaseTitle(%s) = %q, want %q", p, got, want)
		}
	}
	if got := phaseShort(jobstate.PhaseIdle); got != "Starting research..." {
		t.Errorf("phaseShort(idle) = %q", got)
	}
}
