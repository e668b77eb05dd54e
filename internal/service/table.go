package service

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteStatusTable prints the job summary and per-category progress tables.
func WriteStatusTable(w io.Writer, d JobDisplay) error {
	summary := tablewriter.NewWriter(w)
	summary.Header("Field", "Value")
	rows := [][]string{
		{"Job", d.ID},
		{"Company", d.Company},
		{"Phase", d.Phase.String()},
	}
	if d.Status != "" {
		rows = append(rows, []string{"Status", d.Status})
	}
	if d.Error != "" {
		rows = append(rows, []string{"Error", d.Error})
	}
	if len(d.Queries) > 0 {
		rows = append(rows, []string{"Queries", fmt.Sprintf("%d", len(d.Queries))})
	}
	if d.ReportSize != "" {
		rows = append(rows, []string{"Report", d.ReportSize})
	}
	for _, r := range rows {
		if err := summary.Append(r[0], r[1]); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(d.Curation) == 0 && len(d.Enrichment) == 0 && len(d.Briefings) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	progress := tablewriter.NewWriter(w)
	progress.Header("Category", "Curated", "Enriched", "Briefing")
	for _, cat := range categories(d) {
		if err := progress.Append(cat, curatedCell(d, cat), enrichedCell(d, cat), briefingCell(d, cat)); err != nil {
			return err
		}
	}
	return progress.Render()
}

func categories(d JobDisplay) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range d.Curation {
		add(c.Category)
	}
	for _, c := range d.Enrichment {
		add(c.Category)
	}
	for _, b := range d.Briefings {
		add(b.Category)
	}
	return out
}

func curatedCell(d JobDisplay, cat string) string {
	for _, c := range d.Curation {
		if c.Category == cat {
			return c.Fraction()
		}
	}
	return "-"
}

func enrichedCell(d JobDisplay, cat string) string {
	for _, c := range d.Enrichment {
		if c.Category == cat {
			if c.Final {
				return c.Fraction() + " ✓"
			}
			return c.Fraction()
		}
	}
	return "-"
}

func briefingCell(d JobDisplay, cat string) string {
	for _, b := range d.Briefings {
		if b.Category == cat {
			if b.Done {
				return "done"
			}
			return "writing"
		}
	}
	return "-"
}
