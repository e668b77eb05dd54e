package protocol

// Status is the wire tag carried in data.status.
type Status string

const (
	StatusProcessing       Status = "processing"
	StatusQueryGenerating  Status = "query_generating"
	StatusQueryGenerated   Status = "query_generated"
	StatusCategoryStart    Status = "category_start"
	StatusExtracted        Status = "extracted"
	StatusExtractionError  Status = "extraction_error"
	StatusCategoryComplete Status = "category_complete"
	StatusDocumentKept     Status = "document_kept"
	StatusCurationComplete Status = "curation_complete"
	StatusBriefingStart    Status = "briefing_start"
	StatusBriefingComplete Status = "briefing_complete"
	StatusReportChunk      Status = "report_chunk"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusError            Status = "error"
	StatusWebsiteError     Status = "website_error"
)

// Event is a decoded status update. The set of implementations is closed;
// callers switch on the concrete type.
type Event interface {
	Status() Status
	Text() string
	isEvent()
}

// Header holds the fields every status update may carry.
type Header struct {
	Message string
}

func (h Header) Text() string { return h.Message }
func (Header) isEvent()       {}

type Processing struct {
	Header
	Step string
}

func (Processing) Status() Status { return StatusProcessing }

// QueryGenerating carries the next token of a query still being written.
type QueryGenerating struct {
	Header
	Category string
	Number   int
	Token    string
}

func (QueryGenerating) Status() Status { return StatusQueryGenerating }

// QueryGenerated carries the finished text of a query.
type QueryGenerated struct {
	Header
	Category string
	Number   int
	Query    string
}

func (QueryGenerated) Status() Status { return StatusQueryGenerated }

// CurationStart is a category_start sent by the curation step.
type CurationStart struct {
	Header
	DocType string
	Initial int
}

func (CurationStart) Status() Status { return StatusCategoryStart }

// EnrichmentStart is a category_start sent by the enrichment step.
type EnrichmentStart struct {
	Header
	Category string
	Total    int
}

func (EnrichmentStart) Status() Status { return StatusCategoryStart }

type Extracted struct {
	Header
	Category string
}

func (Extracted) Status() Status { return StatusExtracted }

type ExtractionError struct {
	Header
	Category string
}

func (ExtractionError) Status() Status { return StatusExtractionError }

// CategoryComplete is the authoritative final count for an enrichment category.
type CategoryComplete struct {
	Header
	Category string
	Total    int
	Enriched int
}

func (CategoryComplete) Status() Status { return StatusCategoryComplete }

type DocumentKept struct {
	Header
	DocType string
}

func (DocumentKept) Status() Status { return StatusDocumentKept }

// CurationComplete is the authoritative doc count snapshot for every category.
type CurationComplete struct {
	Header
	DocCounts map[string]DocCount
}

func (CurationComplete) Status() Status { return StatusCurationComplete }

type BriefingStart struct {
	Header
	Category string
}

func (BriefingStart) Status() Status { return StatusBriefingStart }

type BriefingComplete struct {
	Header
	Category string
}

func (BriefingComplete) Status() Status { return StatusBriefingComplete }

type ReportChunk struct {
	Header
	Chunk string
}

func (ReportChunk) Status() Status { return StatusReportChunk }

// Completed ends the job. HasReport reports whether Report is authoritative.
type Completed struct {
	Header
	Report    string
	HasReport bool
	Company   string
}

func (Completed) Status() Status { return StatusCompleted }

// Failed covers the fatal failed and error tags.
type Failed struct {
	Header
	Tag    Status
	Reason string
}

func (f Failed) Status() Status {
	if f.Tag == "" {
		return StatusFailed
	}
	return f.Tag
}

// WebsiteError is fatal unless Continue is set.
type WebsiteError struct {
	Header
	Continue bool
	Reason   string
}

func (WebsiteError) Status() Status { return StatusWebsiteError }

// Unknown is any frame this client does not understand.
type Unknown struct {
	Header
	Tag       string
	FrameType string
}

func (u Unknown) Status() Status { return Status(u.Tag) }

// IsTerminal reports whether ev ends the job.
func IsTerminal(ev Event) bool {
	switch e := ev.(type) {
	case Completed, Failed:
		return true
	case WebsiteError:
		return !e.Continue
	}
	return false
}
