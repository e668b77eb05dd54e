package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameTypeStatusUpdate is the only inbound frame type the research socket sends.
const FrameTypeStatusUpdate = "status_update"

// Envelope is one inbound WebSocket frame.
type Envelope struct {
	Type string     `json:"type"`
	Data StatusData `json:"data"`
}

// StatusData is the payload of a status_update frame.
type StatusData struct {
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Error   *string `json:"error,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// Result carries the per-status fields. Every field is optional on the wire.
type Result struct {
	Step             string              `json:"step,omitempty"`
	Category         string              `json:"category,omitempty"`
	Query            string              `json:"query,omitempty"`
	QueryNumber      *int                `json:"query_number,omitempty"`
	Count            *int                `json:"count,omitempty"`
	Total            *int                `json:"total,omitempty"`
	Enriched         *int                `json:"enriched,omitempty"`
	DocType          string              `json:"doc_type,omitempty"`
	InitialCount     *int                `json:"initial_count,omitempty"`
	Chunk            string              `json:"chunk,omitempty"`
	Report           *string             `json:"report,omitempty"`
	Company          string              `json:"company,omitempty"`
	ContinueResearch bool                `json:"continue_research,omitempty"`
	DocCounts        map[string]DocCount `json:"doc_counts,omitempty"`
}

// DocCount is one curation category in an authoritative doc_counts snapshot.
type DocCount struct {
	Initial int `json:"initial"`
	Kept    int `json:"kept"`
}

// Decode parses a raw frame into a typed Event. Frames of another type, or
// with an unrecognised status tag, decode to Unknown rather than failing.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}
	if env.Type != FrameTypeStatusUpdate {
		return Unknown{Tag: env.Type, FrameType: env.Type}, nil
	}
	return FromStatus(env.Data), nil
}

// FromStatus maps a status payload onto its Event variant.
func FromStatus(d StatusData) Event {
	var r Result
	if d.Result != nil {
		r = *d.Result
	}
	h := Header{Message: d.Message}

	switch Status(d.Status) {
	case StatusProcessing:
		return Processing{Header: h, Step: r.Step}
	case StatusQueryGenerating:
		return QueryGenerating{Header: h, Category: r.Category, Number: intOr(r.QueryNumber, 0), Token: r.Query}
	case StatusQueryGenerated:
		return QueryGenerated{Header: h, Category: r.Category, Number: intOr(r.QueryNumber, 0), Query: r.Query}
	case StatusCategoryStart:
		if isCuration(r) {
			return CurationStart{Header: h, DocType: curationKey(r), Initial: intOr(r.InitialCount, intOr(r.Count, 0))}
		}
		return EnrichmentStart{Header: h, Category: r.Category, Total: intOr(r.Total, intOr(r.Count, 0))}
	case StatusExtracted:
		return Extracted{Header: h, Category: r.Category}
	case StatusExtractionError:
		return ExtractionError{Header: h, Category: r.Category}
	case StatusCategoryComplete:
		return CategoryComplete{Header: h, Category: r.Category, Total: intOr(r.Total, 0), Enriched: intOr(r.Enriched, 0)}
	case StatusDocumentKept:
		return DocumentKept{Header: h, DocType: curationKey(r)}
	case StatusCurationComplete:
		counts := make(map[string]DocCount, len(r.DocCounts))
		for k, v := range r.DocCounts {
			counts[k] = v
		}
		return CurationComplete{Header: h, DocCounts: counts}
	case StatusBriefingStart:
		return BriefingStart{Header: h, Category: r.Category}
	case StatusBriefingComplete:
		return BriefingComplete{Header: h, Category: r.Category}
	case StatusReportChunk:
		return ReportChunk{Header: h, Chunk: r.Chunk}
	case StatusCompleted:
		c := Completed{Header: h, Company: r.Company}
		if r.Report != nil && *r.Report != "" {
			c.Report = *r.Report
			c.HasReport = true
		}
		return c
	case StatusFailed, StatusError:
		return Failed{Header: h, Tag: Status(d.Status), Reason: failureReason(d)}
	case StatusWebsiteError:
		return WebsiteError{Header: h, Continue: r.ContinueResearch, Reason: failureReason(d)}
	default:
		return Unknown{Header: h, Tag: d.Status, FrameType: FrameTypeStatusUpdate}
	}
}

func isCuration(r Result) bool {
	if strings.EqualFold(r.Step, "Curation") {
		return true
	}
	if strings.EqualFold(r.Step, "Enrichment") {
		return false
	}
	return r.DocType != "" || r.InitialCount != nil
}

func curationKey(r Result) string {
	if r.DocType != "" {
		return r.DocType
	}
	return r.Category
}

func failureReason(d StatusData) string {
	if d.Error != nil && *d.Error != "" {
		return *d.Error
	}
	return d.Message
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
