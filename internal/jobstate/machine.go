package jobstate

import (
	"log/slog"

	"research-cli/internal/protocol"
)

// Machine owns the only writable Job for one research run. It is not safe
// for concurrent use; drive it from a single goroutine.
type Machine struct {
	job    Job
	logger *slog.Logger
}

// NewMachine returns a machine tracking an empty job.
func NewMachine(jobID, company string, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{job: NewJob(jobID, company), logger: logger}
}

// Apply folds ev into the job.
func (m *Machine) Apply(ev protocol.Event) Outcome {
	next, outcome := Reduce(m.job, ev)
	switch outcome {
	case Applied:
		if next.Phase != m.job.Phase {
			m.logger.Info("job phase changed",
				slog.String("job_id", m.job.ID),
				slog.String("from", m.job.Phase.String()),
				slog.String("to", next.Phase.String()))
		}
		m.job = next
	case Ignored:
		if ev == nil {
			break
		}
		m.logger.Debug("ignoring unknown event",
			slog.String("job_id", m.job.ID),
			slog.String("status", string(ev.Status())))
	}
	return outcome
}

// Advise records a connection-level advisory. It reports false when an
// identical advisory is already shown. Job progress is never touched.
func (m *Machine) Advise(a protocol.Advisory) bool {
	if m.job.HasAdvisory(a) {
		return false
	}
	next := m.job.Clone()
	next.Advisories = append(next.Advisories, a)
	m.job = next
	return true
}

// State returns a copy of the current job.
func (m *Machine) State() Job {
	return m.job.Clone()
}

// Reset discards the current job and starts tracking a new one.
func (m *Machine) Reset(jobID, company string) {
	m.job = NewJob(jobID, company)
}
