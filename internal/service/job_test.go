package service

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samber/mo"

	"research-cli/internal/jobstate"
)

func sampleJob() jobstate.Job {
	job := jobstate.NewJob("job-1", "Acme Corp")
	job.Phase = jobstate.PhaseEnrichment
	job.StatusMessage = "Enriching documents"
	job.DocCounts = map[string]jobstate.DocCount{
		"news_data":      {Initial: 4, Kept: 2},
		"company_data":   {Initial: 10, Kept: 7},
		"financial_data": {Initial: 3, Kept: 3},
	}
	job.EnrichmentCounts = map[string]jobstate.EnrichmentCount{
		"company":   {Total: 7, Enriched: 7, Complete: true},
		"financial": {Total: 3, Enriched: 1},
	}
	job.BriefingStatus = map[string]bool{"company": true}
	job.Queries = []jobstate.Query{{Text: "acme revenue", Number: 1, Category: "financial"}}
	job.StreamingQueries = map[string]jobstate.Query{"news-1": {Text: "acme la", Number: 1, Category: "news"}}
	return job
}

func TestFormatJob(t *testing.T) {
	t.Run("empty job", func(t *testing.T) {
		got := FormatJob(jobstate.NewJob("", ""))
		if got.Company != "(unnamed)" {
			t.Errorf("Company = %q, want %q", got.Company, "(unnamed)")
		}
		if len(got.Curation) != 0 || got.ReportSize != "" {
			t.Errorf("unexpected rows: %+v", got)
		}
	})

	t.Run("categories in pipeline order", func(t *testing.T) {
		got := FormatJob(sampleJob())
		var names []string
		for _, c := range got.Curation {
			names = append(names, c.Category)
		}
		if strings.Join(names, ",") != "Company,Financial,News" {
			t.Errorf("curation order = %v", names)
		}
		if got.Curation[0].Fraction() != "7/10" {
			t.Errorf("company curation = %s, want 7/10", got.Curation[0].Fraction())
		}
		if !got.Enrichment[0].Final || got.Enrichment[1].Final {
			t.Errorf("enrichment final flags = %+v", got.Enrichment)
		}
		if len(got.Pending) != 1 || got.Pending[0] != "acme la" {
			t.Errorf("Pending = %v", got.Pending)
		}
	})

	t.Run("error and report", func(t *testing.T) {
		job := sampleJob()
		job.Error = mo.Some("site unreachable")
		job.Report = strings.Repeat("x", 2048)
		got := FormatJob(job)
		if got.Error != "site unreachable" {
			t.Errorf("Error = %q", got.Error)
		}
		if got.ReportSize != "2.0 KB" {
			t.Errorf("ReportSize = %q, want 2.0 KB", got.ReportSize)
		}
	})
}

func TestProgressLine(t *testing.T) {
	tests := []struct {
		name string
		job  func() jobstate.Job
		want string
	}{
		{
			name: "enrichment",
			job:  sampleJob,
			want: "enrichment · Enriching documents · 12/17 docs kept · 8/10 enriched",
		},
		{
			name: "search",
			job: func() jobstate.Job {
				j := sampleJob()
				j.Phase = jobstate.PhaseSearch
				j.StatusMessage = ""
				return j
			},
			want: "search · 1 queries",
		},
		{
			name: "briefing with report",
			job: func() jobstate.Job {
				j := sampleJob()
				j.Phase = jobstate.PhaseBriefing
				j.StatusMessage = "Writing briefings"
				j.Report = "# Acme"
				return j
			},
			want: "briefing · Writing briefings · 1/1 briefings · report 6 B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressLine(tt.job()); got != tt.want {
				t.Errorf("ProgressLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := map[string]string{
		"financial_data": "Financial",
		"company":        "Company",
		"market_share":   "Market share",
		"":               "",
	}
	for in, want := range tests {
		if got := CategoryLabel(in); got != want {
			t.Errorf("CategoryLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteStatusTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatusTable(&buf, FormatJob(sampleJob())); err != nil {
		t.Fatalf("WriteStatusTable: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"job-1", "Acme Corp", "enrichment", "7/10", "7/7 ✓", "1/3", "done", "News"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStatusTableSummaryOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatusTable(&buf, FormatJob(jobstate.NewJob("job-2", "Initech"))); err != nil {
		t.Fatalf("WriteStatusTable: %v", err)
	}
	if strings.Contains(buf.String(), "Curated") {
		t.Errorf("progress table should be omitted:\n%s", buf.String())
	}
}

func TestExportMarkdown(t *testing.T) {
	tests := []struct {
		name      string
		job       jobstate.Job
		wantLabel string
		wantText  string
	}{
		{
			name:      "report with heading",
			job:       jobstate.Job{ID: "job-1", Company: "Acme, Inc.", Report: "# Acme\n\nBody\n\n"},
			wantLabel: "acme-inc-report",
			wantText:  "# Acme\n\nBody\n",
		},
		{
			name:      "heading added",
			job:       jobstate.Job{ID: "job-1", Company: "Acme", Report: "Body"},
			wantLabel: "acme-report",
			wantText:  "# Acme Research Report\n\nBody\n",
		},
		{
			name:      "falls back to job id",
			job:       jobstate.Job{ID: "JOB_42", Report: "Body"},
			wantLabel: "job-42-report",
			wantText:  "Body\n",
		},
		{
			name:      "no report",
			job:       jobstate.Job{},
			wantLabel: "research-report",
			wantText:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, text := ExportMarkdown(tt.job)
			if label != tt.wantLabel {
				t.Errorf("label = %q, want %q", label, tt.wantLabel)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
	if got := ExportFileName("acme-report"); got != "acme-report.md" {
		t.Errorf("ExportFileName = %q", got)
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name string
		job  func() jobstate.Job
		want float64
	}{
		{"idle", func() jobstate.Job { return jobstate.NewJob("j", "") }, 0},
		{"search", func() jobstate.Job { j := sampleJob(); j.Phase = jobstate.PhaseSearch; return j }, 0.1},
		{"enrichment", sampleJob, 0.2 + 0.5*8/10},
		{"briefing", func() jobstate.Job {
			j := sampleJob()
			j.Phase = jobstate.PhaseBriefing
			j.BriefingStatus = map[string]bool{"company": true, "news": false}
			return j
		}, 0.85},
		{"complete", func() jobstate.Job { j := sampleJob(); j.Phase = jobstate.PhaseComplete; return j }, 1},
		{"failed", func() jobstate.Job { j := sampleJob(); j.Phase = jobstate.PhaseFailed; return j }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressFraction(tt.job())
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ProgressFraction = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortCategories(t *testing.T) {
	keys := []string{"zeta", "news_data", "alpha", "company"}
	SortCategories(keys)
	if strings.Join(keys, ",") != "company,news_data,alpha,zeta" {
		t.Errorf("SortCategories = %v", keys)
	}
}
