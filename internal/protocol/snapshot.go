package protocol

import "github.com/samber/mo"

// Snapshot is the job status returned by the polling endpoint. It has the
// same shape the completion event carries.
type Snapshot struct {
	JobID   string
	Status  Status
	Step    string
	Message string
	Company string
	Report  mo.Option[string]
	Error   mo.Option[string]
}

// SnapshotWire is the JSON document served by GET /research/{job_id}.
type SnapshotWire struct {
	JobID   string  `json:"job_id,omitempty"`
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Company string  `json:"company,omitempty"`
	Report  *string `json:"report,omitempty"`
	Error   *string `json:"error,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// Snapshot converts the wire document, preferring top-level fields over the
// nested result.
func (w SnapshotWire) Snapshot() Snapshot {
	s := Snapshot{
		JobID:   w.JobID,
		Status:  Status(w.Status),
		Message: w.Message,
		Company: w.Company,
		Report:  optString(w.Report),
		Error:   optString(w.Error),
	}
	if w.Result != nil {
		s.Step = w.Result.Step
		if s.Company == "" {
			s.Company = w.Result.Company
		}
		if s.Report.IsAbsent() {
			s.Report = optString(w.Result.Report)
		}
	}
	return s
}

// IsTerminal reports whether the snapshot describes a finished job.
func (s Snapshot) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

func optString(p *string) mo.Option[string] {
	if p == nil || *p == "" {
		return mo.None[string]()
	}
	return mo.Some(*p)
}
