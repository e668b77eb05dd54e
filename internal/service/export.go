package service

import (
	"fmt"
	"strings"
	"unicode"

	"research-cli/internal/jobstate"
)

// ExportMarkdown returns a file label and the markdown to write for a job's
// report. A report without a top-level heading gets one naming the company.
func ExportMarkdown(job jobstate.Job) (string, string) {
	label := slug(job.Company)
	if label == "" {
		label = slug(job.ID)
	}
	if label == "" {
		label = "research"
	}
	label += "-report"

	text := strings.TrimSpace(job.Report)
	if text == "" {
		return label, ""
	}
	if !strings.HasPrefix(text, "# ") && job.Company != "" {
		text = fmt.Sprintf("# %s Research Report\n\n%s", job.Company, text)
	}
	return label, text + "\n"
}

// ExportFileName is the file ExportMarkdown's label is saved to.
func ExportFileName(label string) string {
	return label + ".md"
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
