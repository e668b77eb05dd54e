// Package jobstate folds research status events into a single job view model.
package jobstate

import (
	"fmt"

	"github.com/samber/mo"

	"research-cli/internal/protocol"
)

// Phase is the pipeline stage of a job. Phases only move forward, except
// that Failed is reachable from any non-terminal phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSearch
	PhaseEnrichment
	PhaseBriefing
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSearch:
		return "search"
	case PhaseEnrichment:
		return "enrichment"
	case PhaseBriefing:
		return "briefing"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further events change a job in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// DocCount tracks curation progress for one document category. Inferred is
// set when documents were kept before the category announced its initial
// count; Initial then follows Kept.
type DocCount struct {
	Initial  int
	Kept     int
	Inferred bool
}

// EnrichmentCount tracks enrichment progress for one category. Complete is
// set once the server has sent the authoritative final values.
type EnrichmentCount struct {
	Total    int
	Enriched int
	Complete bool
}

// Query is one search query generated for a category.
type Query struct {
	Text     string
	Number   int
	Category string
}

// Key returns the "category-number" key used for in-progress queries.
func (q Query) Key() string {
	return QueryKey(q.Category, q.Number)
}

// QueryKey builds the key identifying a query within a job.
func QueryKey(category string, number int) string {
	return fmt.Sprintf("%s-%d", category, number)
}

// Job is the view model of one research run. Values returned by Reduce and
// Machine.State never share maps or slices with the machine's copy.
type Job struct {
	ID               string
	Company          string
	Phase            Phase
	StatusMessage    string
	Error            mo.Option[string]
	DocCounts        map[string]DocCount
	EnrichmentCounts map[string]EnrichmentCount
	BriefingStatus   map[string]bool
	Queries          []Query
	StreamingQueries map[string]Query
	Report           string
	IsComplete       bool
	HasFinalReport   bool
	IsResearching    bool
	Advisories       []protocol.Advisory
}

// NewJob returns an empty job for a freshly submitted research request.
func NewJob(id, company string) Job {
	return Job{
		ID:            id,
		Company:       company,
		Phase:         PhaseIdle,
		Error:         mo.None[string](),
		IsResearching: id != "",
	}
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	c := j
	c.DocCounts = cloneMap(j.DocCounts)
	c.EnrichmentCounts = cloneMap(j.EnrichmentCounts)
	c.BriefingStatus = cloneMap(j.BriefingStatus)
	c.StreamingQueries = cloneMap(j.StreamingQueries)
	if j.Queries != nil {
		c.Queries = append([]Query(nil), j.Queries...)
	}
	if j.Advisories != nil {
		c.Advisories = append([]protocol.Advisory(nil), j.Advisories...)
	}
	return c
}

// Failed reports whether the job ended with a fatal error.
func (j Job) Failed() bool {
	return j.Phase == PhaseFailed
}

// HasAdvisory reports whether an identical advisory is already recorded.
func (j Job) HasAdvisory(a protocol.Advisory) bool {
	for _, existing := range j.Advisories {
		if existing == a {
			return true
		}
	}
	return false
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
