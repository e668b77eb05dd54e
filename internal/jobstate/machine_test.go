package jobstate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"research-cli/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMachineApply(t *testing.T) {
	m := NewMachine("job-1", "Acme", quietLogger())

	assert.Equal(t, Applied, m.Apply(protocol.Processing{Step: "Enrichment"}))
	assert.Equal(t, Ignored, m.Apply(protocol.Unknown{Tag: "heartbeat"}))
	assert.Equal(t, PhaseEnrichment, m.State().Phase)
}

func TestMachineStateIsACopy(t *testing.T) {
	m := NewMachine("job-1", "Acme", quietLogger())
	m.Apply(protocol.EnrichmentStart{Category: "news", Total: 3})

	snapshot := m.State()
	snapshot.EnrichmentCounts["news"] = EnrichmentCount{Total: 99}
	snapshot.Queries = append(snapshot.Queries, Query{Text: "rogue"})

	assert.Equal(t, 3, m.State().EnrichmentCounts["news"].Total)
	assert.Empty(t, m.State().Queries)
}

func TestMachineAdvise(t *testing.T) {
	m := NewMachine("job-1", "Acme", quietLogger())
	m.Apply(protocol.ReportChunk{Chunk: "partial"})

	a := protocol.Advisory{Class: protocol.ConnectionExhausted, Message: "live updates unavailable"}
	assert.True(t, m.Advise(a))
	assert.False(t, m.Advise(a), "identical advisories must not stack")

	job := m.State()
	assert.Len(t, job.Advisories, 1)
	assert.Equal(t, "partial", job.Report, "advisories never touch progress")
}

func TestMachineReset(t *testing.T) {
	m := NewMachine("job-1", "Acme", nil)
	m.Apply(protocol.Failed{Reason: "boom"})
	assert.True(t, m.State().Failed())

	m.Reset("job-2", "Globex")
	job := m.State()
	assert.Equal(t, "job-2", job.ID)
	assert.Equal(t, "Globex", job.Company)
	assert.Equal(t, PhaseIdle, job.Phase)
	assert.True(t, job.Error.IsAbsent())
	assert.True(t, job.IsResearching)
}
