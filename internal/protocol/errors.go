package protocol

// ErrorClass names a failure category shown to the user at most once.
type ErrorClass int

const (
	ConnectionError     ErrorClass = iota + 1 // channel dropped before completion
	ConnectionExhausted                       // reconnects used up, polling only
	JobFailure                                // server reported failed/error
	NonFatalSiteError                         // website_error with continue flag
	StreamRequestError                        // chat stream request failed
	SegmentationNoop                          // report produced no blocks
)

func (c ErrorClass) String() string {
	switch c {
	case ConnectionError:
		return "connection_error"
	case ConnectionExhausted:
		return "connection_exhausted"
	case JobFailure:
		return "job_failure"
	case NonFatalSiteError:
		return "site_error"
	case StreamRequestError:
		return "stream_request_error"
	case SegmentationNoop:
		return "segmentation_noop"
	default:
		return "unknown"
	}
}

// Fatal reports whether the class ends the job.
func (c ErrorClass) Fatal() bool {
	return c == JobFailure
}

// Advisory is a human-readable notice attached to a failure class.
type Advisory struct {
	Class   ErrorClass
	Message string
}
