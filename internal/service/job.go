package service

import (
	"fmt"
	"sort"
	"strings"

	"research-cli/internal/jobstate"
)

// categoryOrder is the order the research pipeline reports on.
var categoryOrder = map[string]int{"company": 0, "industry": 1, "financial": 2, "news": 3}

// JobDisplay holds display-ready job progress.
type JobDisplay struct {
	ID         string
	Company    string
	Phase      jobstate.Phase
	Status     string
	Error      string
	Curation   []CountDisplay
	Enrichment []CountDisplay
	Briefings  []BriefingDisplay
	Queries    []string
	Pending    []string
	ReportSize string
}

// CountDisplay is one category's done/total progress.
type CountDisplay struct {
	Category string
	Done     int
	Total    int
	Final    bool
}

func (c CountDisplay) Fraction() string {
	return fmt.Sprintf("%d/%d", c.Done, c.Total)
}

type BriefingDisplay struct {
	Category string
	Done     bool
}

// FormatJob transforms the job view model into display rows, with
// categories in pipeline order.
func FormatJob(job jobstate.Job) JobDisplay {
	d := JobDisplay{
		ID:      job.ID,
		Company: job.Company,
		Phase:   job.Phase,
		Status:  job.StatusMessage,
		Error:   job.Error.OrEmpty(),
	}
	if d.Company == "" {
		d.Company = "(unnamed)"
	}

	for _, cat := range sortedKeys(job.DocCounts) {
		c := job.DocCounts[cat]
		d.Curation = append(d.Curation, CountDisplay{Category: CategoryLabel(cat), Done: c.Kept, Total: c.Initial})
	}
	for _, cat := range sortedKeys(job.EnrichmentCounts) {
		c := job.EnrichmentCounts[cat]
		d.Enrichment = append(d.Enrichment, CountDisplay{Category: CategoryLabel(cat), Done: c.Enriched, Total: c.Total, Final: c.Complete})
	}
	for _, cat := range sortedKeys(job.BriefingStatus) {
		d.Briefings = append(d.Briefings, BriefingDisplay{Category: CategoryLabel(cat), Done: job.BriefingStatus[cat]})
	}

	for _, q := range job.Queries {
		d.Queries = append(d.Queries, q.Text)
	}
	for _, key := range sortedKeys(job.StreamingQueries) {
		if q := job.StreamingQueries[key]; strings.TrimSpace(q.Text) != "" {
			d.Pending = append(d.Pending, q.Text)
		}
	}

	if n := len(job.Report); n > 0 {
		d.ReportSize = formatSize(n)
	}
	return d
}

// ProgressLine is the one-line summary printed while tracking a job.
func ProgressLine(job jobstate.Job) string {
	d := FormatJob(job)
	parts := []string{job.Phase.String()}
	if d.Status != "" {
		parts = append(parts, d.Status)
	}

	switch job.Phase {
	case jobstate.PhaseSearch:
		if n := len(d.Queries); n > 0 {
			parts = append(parts, fmt.Sprintf("%d queries", n))
		}
	case jobstate.PhaseEnrichment:
		done, total := 0, 0
		for _, c := range d.Curation {
			done += c.Done
			total += c.Total
		}
		if total > 0 {
			parts = append(parts, fmt.Sprintf("%d/%d docs kept", done, total))
		}
		done, total = 0, 0
		for _, c := range d.Enrichment {
			done += c.Done
			total += c.Total
		}
		if total > 0 {
			parts = append(parts, fmt.Sprintf("%d/%d enriched", done, total))
		}
	case jobstate.PhaseBriefing:
		done := 0
		for _, b := range d.Briefings {
			if b.Done {
				done++
			}
		}
		if len(d.Briefings) > 0 {
			parts = append(parts, fmt.Sprintf("%d/%d briefings", done, len(d.Briefings)))
		}
	}
	if d.ReportSize != "" {
		parts = append(parts, "report "+d.ReportSize)
	}
	return strings.Join(parts, " · ")
}

// CategoryLabel turns "financial_data" into "Financial".
func CategoryLabel(cat string) string {
	cat = strings.TrimSuffix(cat, "_data")
	if cat == "" {
		return cat
	}
	cat = strings.ReplaceAll(cat, "_", " ")
	return strings.ToUpper(cat[:1]) + cat[1:]
}

func categoryRank(cat string) int {
	if r, ok := categoryOrder[strings.TrimSuffix(strings.ToLower(cat), "_data")]; ok {
		return r
	}
	return len(categoryOrder)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortCategories(keys)
	return keys
}

// SortCategories orders category keys the way the pipeline reports them,
// unknown categories last in name order.
func SortCategories(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := categoryRank(keys[i]), categoryRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
}

// ProgressFraction estimates how far a job is through the pipeline, from 0
// to 1, for progress bars.
func ProgressFraction(job jobstate.Job) float64 {
	switch job.Phase {
	case jobstate.PhaseComplete:
		return 1
	case jobstate.PhaseSearch:
		return 0.1
	case jobstate.PhaseEnrichment:
		done, total := 0, 0
		for _, c := range job.EnrichmentCounts {
			done += c.Enriched
			total += c.Total
		}
		if total == 0 {
			return 0.2
		}
		return 0.2 + 0.5*float64(done)/float64(total)
	case jobstate.PhaseBriefing:
		if len(job.BriefingStatus) == 0 {
			return 0.75
		}
		done := 0
		for _, ok := range job.BriefingStatus {
			if ok {
				done++
			}
		}
		return 0.75 + 0.2*float64(done)/float64(len(job.BriefingStatus))
	default:
		return 0
	}
}

func formatSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
