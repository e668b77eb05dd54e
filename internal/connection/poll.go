package connection

import (
	"strings"

	"research-cli/internal/protocol"
)

// observed is the last job status seen from either source. Polled snapshots
// are compared against it so only changes become events.
type observed struct {
	status protocol.Status
	step   string
	report string
	err    string
}

func (o *observed) observe(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Unknown:
		return
	case protocol.Processing:
		if e.Step != "" {
			o.step = e.Step
		}
	case protocol.ReportChunk:
		o.report += e.Chunk
	case protocol.Completed:
		if e.HasReport {
			o.report = e.Report
		}
	case protocol.Failed:
		o.err = e.Reason
	}
	o.status = ev.Status()
}

// deltaEvents synthesizes the events that take last to snap. Snapshots carry
// no per-category counters, so only status, step, report and failure are
// compared; the reducer's overwrite and clamp rules absorb any overlap with
// events that also arrive on the stream.
func deltaEvents(last observed, snap protocol.Snapshot) []protocol.Event {
	h := protocol.Header{Message: snap.Message}

	switch snap.Status {
	case "":
		return nil

	case protocol.StatusCompleted:
		done := protocol.Completed{Header: h, Company: snap.Company}
		if r, ok := snap.Report.Get(); ok {
			done.Report = r
			done.HasReport = true
		}
		return []protocol.Event{done}

	case protocol.StatusFailed, protocol.StatusError:
		reason := snap.Error.OrElse(snap.Message)
		return []protocol.Event{protocol.Failed{Header: h, Tag: snap.Status, Reason: reason}}
	}

	var events []protocol.Event
	if snap.Step != "" && (snap.Step != last.step || snap.Status != last.status) {
		events = append(events, protocol.Processing{Header: h, Step: snap.Step})
	}
	if r, ok := snap.Report.Get(); ok && len(r) > len(last.report) && strings.HasPrefix(r, last.report) {
		events = append(events, protocol.ReportChunk{Chunk: r[len(last.report):]})
	}
	return events
}

// SnapshotEvents returns the events describing snap on its own, for callers
// that fetch a single snapshot instead of tracking a job.
func SnapshotEvents(snap protocol.Snapshot) []protocol.Event {
	return deltaEvents(observed{}, snap)
}
