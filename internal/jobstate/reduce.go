package jobstate

import (
	"strings"

	"github.com/samber/mo"

	"research-cli/internal/protocol"
)

// Outcome describes what Reduce did with an event.
type Outcome int

const (
	// Applied means the event changed the job.
	Applied Outcome = iota
	// NoOp means the event was understood but left the job unchanged.
	NoOp
	// Ignored means the event's status tag is not known to this client.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOp:
		return "noop"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Reduce folds one event into job and returns the resulting job. The input is
// never modified. Counters driven by per-item events are clamped; counters
// carried by authoritative snapshots overwrite local values.
func Reduce(job Job, ev protocol.Event) (Job, Outcome) {
	if _, ok := ev.(protocol.Unknown); ok || ev == nil {
		return job, Ignored
	}
	if job.Phase.Terminal() {
		return job, NoOp
	}

	next := job.Clone()
	if !apply(&next, ev) {
		return job, NoOp
	}
	return next, Applied
}

// apply mutates j in place and reports whether anything changed.
func apply(j *Job, ev protocol.Event) bool {
	changed := false

	switch e := ev.(type) {
	case protocol.Processing:
		changed = setMessage(j, e.Text())
		changed = advance(j, phaseForStep(e.Step)) || changed

	case protocol.QueryGenerating:
		changed = advance(j, PhaseSearch)
		if e.Token == "" || queryDone(j, e.Category, e.Number) {
			return changed
		}
		key := QueryKey(e.Category, e.Number)
		if j.StreamingQueries == nil {
			j.StreamingQueries = make(map[string]Query)
		}
		q := j.StreamingQueries[key]
		j.StreamingQueries[key] = Query{Text: q.Text + e.Token, Number: e.Number, Category: e.Category}
		return true

	case protocol.QueryGenerated:
		changed = advance(j, PhaseSearch)
		key := QueryKey(e.Category, e.Number)
		if _, ok := j.StreamingQueries[key]; ok {
			delete(j.StreamingQueries, key)
			changed = true
		}
		if !queryDone(j, e.Category, e.Number) {
			j.Queries = append(j.Queries, Query{Text: e.Query, Number: e.Number, Category: e.Category})
			changed = true
		}

	case protocol.CurationStart:
		changed = setMessage(j, e.Text())
		changed = advance(j, PhaseEnrichment) || changed
		if j.DocCounts == nil {
			j.DocCounts = make(map[string]DocCount)
		}
		dc, ok := j.DocCounts[e.DocType]
		initial := max(e.Initial, 0)
		if !ok || dc.Inferred || dc.Initial != initial {
			j.DocCounts[e.DocType] = DocCount{Initial: initial, Kept: min(dc.Kept, initial)}
			changed = true
		}

	case protocol.DocumentKept:
		if j.DocCounts == nil {
			j.DocCounts = make(map[string]DocCount)
		}
		dc, ok := j.DocCounts[e.DocType]
		switch {
		case !ok:
			dc = DocCount{Initial: 1, Kept: 1, Inferred: true}
		case dc.Inferred:
			dc.Initial++
			dc.Kept++
		case dc.Kept >= dc.Initial:
			return changed
		default:
			dc.Kept++
		}
		j.DocCounts[e.DocType] = dc
		changed = true

	case protocol.CurationComplete:
		changed = setMessage(j, e.Text())
		if len(e.DocCounts) == 0 {
			return changed
		}
		counts := make(map[string]DocCount, len(e.DocCounts))
		for k, v := range e.DocCounts {
			initial := max(v.Initial, 0)
			counts[k] = DocCount{Initial: initial, Kept: min(max(v.Kept, 0), initial)}
		}
		if !mapsEqual(j.DocCounts, counts) {
			j.DocCounts = counts
			changed = true
		}

	case protocol.EnrichmentStart:
		changed = setMessage(j, e.Text())
		changed = advance(j, PhaseEnrichment) || changed
		if j.EnrichmentCounts == nil {
			j.EnrichmentCounts = make(map[string]EnrichmentCount)
		}
		ec, ok := j.EnrichmentCounts[e.Category]
		if ec.Complete {
			return changed
		}
		total := max(e.Total, 0)
		if !ok || ec.Total != total {
			j.EnrichmentCounts[e.Category] = EnrichmentCount{Total: total, Enriched: min(ec.Enriched, total)}
			changed = true
		}

	case protocol.Extracted:
		ec, ok := j.EnrichmentCounts[e.Category]
		if !ok || ec.Complete || ec.Enriched >= ec.Total {
			return false
		}
		ec.Enriched++
		j.EnrichmentCounts[e.Category] = ec
		changed = true

	case protocol.ExtractionError:
		ec, ok := j.EnrichmentCounts[e.Category]
		if !ok || ec.Complete || ec.Total == 0 {
			return false
		}
		ec.Total--
		ec.Enriched = min(ec.Enriched, ec.Total)
		j.EnrichmentCounts[e.Category] = ec
		changed = true

	case protocol.CategoryComplete:
		changed = setMessage(j, e.Text())
		if j.EnrichmentCounts == nil {
			j.EnrichmentCounts = make(map[string]EnrichmentCount)
		}
		total := max(e.Total, 0)
		final := EnrichmentCount{Total: total, Enriched: min(max(e.Enriched, 0), total), Complete: true}
		if j.EnrichmentCounts[e.Category] != final {
			j.EnrichmentCounts[e.Category] = final
			changed = true
		}

	case protocol.BriefingStart:
		changed = setMessage(j, e.Text())
		changed = advance(j, PhaseBriefing) || changed

	case protocol.BriefingComplete:
		changed = setMessage(j, e.Text())
		changed = advance(j, PhaseBriefing) || changed
		if !j.BriefingStatus[e.Category] {
			if j.BriefingStatus == nil {
				j.BriefingStatus = make(map[string]bool)
			}
			j.BriefingStatus[e.Category] = true
			changed = true
		}

	case protocol.ReportChunk:
		if e.Chunk == "" {
			return false
		}
		j.Report += e.Chunk
		changed = true

	case protocol.Completed:
		j.Phase = PhaseComplete
		j.IsComplete = true
		j.IsResearching = false
		if e.Text() != "" {
			j.StatusMessage = e.Text()
		}
		if e.HasReport {
			j.Report = e.Report
			j.HasFinalReport = true
		}
		if j.Company == "" && e.Company != "" {
			j.Company = e.Company
		}
		changed = true

	case protocol.Failed:
		fail(j, e.Reason)
		changed = true

	case protocol.WebsiteError:
		if !e.Continue {
			fail(j, e.Reason)
			return true
		}
		if j.Error.OrEmpty() != e.Reason {
			j.Error = mo.Some(e.Reason)
			changed = true
		}
		changed = advise(j, protocol.Advisory{Class: protocol.NonFatalSiteError, Message: e.Reason}) || changed
	}

	return changed
}

func fail(j *Job, reason string) {
	j.Phase = PhaseFailed
	j.Error = mo.Some(reason)
	j.IsResearching = false
	advise(j, protocol.Advisory{Class: protocol.JobFailure, Message: reason})
}

// advise records an advisory unless an identical one exists.
func advise(j *Job, a protocol.Advisory) bool {
	if j.HasAdvisory(a) {
		return false
	}
	j.Advisories = append(j.Advisories, a)
	return true
}

// advance moves the job forward to p. It never regresses.
func advance(j *Job, p Phase) bool {
	if p <= j.Phase || p.Terminal() {
		return false
	}
	j.Phase = p
	return true
}

func setMessage(j *Job, msg string) bool {
	if msg == "" || msg == j.StatusMessage {
		return false
	}
	j.StatusMessage = msg
	return true
}

func queryDone(j *Job, category string, number int) bool {
	for _, q := range j.Queries {
		if q.Category == category && q.Number == number {
			return true
		}
	}
	return false
}

// phaseForStep maps a pipeline step label onto a phase. Unrecognised labels
// map to PhaseIdle, which never advances anything.
func phaseForStep(step string) Phase {
	s := strings.ToLower(step)
	switch {
	case s == "":
		return PhaseIdle
	case strings.Contains(s, "brief"), strings.Contains(s, "editor"):
		return PhaseBriefing
	case strings.Contains(s, "curat"), strings.Contains(s, "enrich"):
		return PhaseEnrichment
	case strings.Contains(s, "analyst"), strings.Contains(s, "search"),
		strings.Contains(s, "grounding"), strings.Contains(s, "query"):
		return PhaseSearch
	}
	return PhaseIdle
}

func mapsEqual[K comparable, V comparable](a, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
