package tui

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"research-cli/internal/api"
	"research-cli/internal/config"
	"research-cli/internal/display"
	"research-cli/internal/service"
)

// ─── Input dispatcher ───────────────────────────────────────────────────────

func (m model) dispatchInput(input string) (tea.Model, tea.Cmd) {
	if input == "?" {
		return m.cmdHelp()
	}
	if strings.HasPrefix(input, "/") {
		return m.dispatchCommand(input)
	}
	// Default: treat as a question about the report
	return m.cmdAsk(input)
}

func (m model) dispatchCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help", "/h":
		return m.cmdHelp()
	case "/new", "/research":
		return m.cmdNew(args)
	case "/track":
		return m.cmdTrack(args)
	case "/stop":
		return m.cmdStop()
	case "/status":
		return m.cmdStatus()
	case "/report":
		return m.cmdReport()
	case "/export":
		return m.cmdExport(args)
	case "/ask":
		return m.cmdAsk(strings.Join(args, " "))
	case "/cite":
		return m.cmdCite(args)
	case "/sources":
		return m.cmdSources()
	case "/history":
		return m.cmdHistory()
	case "/config":
		return m.cmdConfig()
	case "/clear":
		return m.cmdClear()
	case "/quit", "/exit", "/q":
		m.shutdown()
		return m, tea.Quit
	default:
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Unknown command: %s (type /help)", cmd)))
	}
}

// ─── /help ──────────────────────────────────────────────────────────────────

func (m model) cmdHelp() (tea.Model, tea.Cmd) {
	pad := func(s string, w int) string {
		for len(s) < w {
			s += " "
		}
		return s
	}
	row := func(key, desc string) tea.Cmd {
		return tea.Println("  " + pad(hintKeyStyle.Render(key), 30) + dimStyle.Render(desc))
	}

	lines := []tea.Cmd{
		tea.Println(""),
		tea.Println(dimStyle.Render("  Commands:")),
		tea.Println(""),
		row("/new <company> [url=…]", "Start researching a company (also industry=…, hq=…)"),
		row("/track [job-id]", "Track a job (default: last job)"),
		row("/stop", "Stop tracking"),
		row("/status", "Show job progress"),
		row("/report", "Show the report with section ids"),
		row("/export [file]", "Save the report as markdown"),
		row("/ask <question>", "Ask about the report"),
		row("/cite <n|bN>", "Show source [n] of the last answer, or block bN"),
		row("/sources", "List sources of the last answer"),
		row("/history", "Show the questions and answers so far"),
		row("/config", "Show current configuration"),
		row("/clear", "Clear the screen"),
		row("/quit", "Exit"),
		tea.Println(""),
		tea.Println(dimStyle.Render("  Or just type a question once the report is ready.")),
		tea.Println(""),
	}
	return m, tea.Sequence(lines...)
}

// ─── /new ───────────────────────────────────────────────────────────────────

// researchKeys maps the /new key=value options onto request fields.
var researchKeys = map[string]func(*api.ResearchRequest, string){
	"url":      func(r *api.ResearchRequest, v string) { r.CompanyURL = v },
	"industry": func(r *api.ResearchRequest, v string) { r.Industry = v },
	"hq":       func(r *api.ResearchRequest, v string) { r.HQLocation = v },
}

// parseResearchArgs splits /new arguments into the company name and the
// optional url=, industry= and hq= fields. Values run until the next key, so
// "hq=San Francisco, CA" works unquoted.
func parseResearchArgs(args []string) (api.ResearchRequest, error) {
	var req api.ResearchRequest
	var name []string
	var set func(*api.ResearchRequest, string)
	var value []string
	flush := func() {
		if set != nil {
			set(&req, strings.Join(value, " "))
		}
		set, value = nil, nil
	}
	for _, arg := range args {
		if key, v, ok := strings.Cut(arg, "="); ok {
			fn, known := researchKeys[strings.ToLower(key)]
			if !known {
				return req, fmt.Errorf("unknown option %q (use url=, industry= or hq=)", key)
			}
			flush()
			set = fn
			if v != "" {
				value = append(value, v)
			}
			continue
		}
		if set != nil {
			value = append(value, arg)
			continue
		}
		name = append(name, arg)
	}
	flush()
	req.Company = strings.TrimSpace(strings.Join(name, " "))
	return req, nil
}

func (m model) cmdNew(args []string) (tea.Model, tea.Cmd) {
	req, err := parseResearchArgs(args)
	if err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", err)))
	}
	company := req.Company
	if company == "" {
		return m, tea.Println(dimStyle.Render("  Usage: /new <company name> [url=<site>] [industry=<name>] [hq=<location>]"))
	}
	if m.client == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ No server configured. Run: research set server <url>"))
	}

	m.closeTracking()
	m.mode = modeSubmitting
	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(userPromptStyle.Render("  ❯ Research "+company)),
		tea.Println(""),
		submitResearch(m.client, req),
	)
}

// ─── /track ─────────────────────────────────────────────────────────────────

func (m model) cmdTrack(args []string) (tea.Model, tea.Cmd) {
	if m.client == nil || m.cfg == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ No server configured. Run: research set server <url>"))
	}

	var jobID string
	if len(args) > 0 {
		jobID = args[0]
	}
	jobID, err := m.cfg.ResolveJob(jobID)
	if err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", err)))
	}

	company := ""
	if jobID == m.cfg.LastJob {
		company = m.cfg.LastCompany
	}

	m, cmd := m.startTracking(jobID, company)
	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Tracking job "+truncateID(jobID))),
		cmd,
	)
}

// ─── /stop ──────────────────────────────────────────────────────────────────

func (m model) cmdStop() (tea.Model, tea.Cmd) {
	if m.manager == nil {
		return m, tea.Println(dimStyle.Render("  Not tracking a job."))
	}
	return m.stopTracking()
}

// ─── /status ────────────────────────────────────────────────────────────────

func (m model) cmdStatus() (tea.Model, tea.Cmd) {
	job := m.machine.State()
	if job.ID == "" {
		return m, tea.Println(warnMsgStyle.Render("  ! No job yet. Use /new <company> or /track <job-id>."))
	}

	var buf bytes.Buffer
	if err := service.WriteStatusTable(&buf, service.FormatJob(job)); err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", err)))
	}

	cmds := []tea.Cmd{
		tea.Println(""),
		tea.Println(strings.TrimRight(buf.String(), "\n")),
		tea.Println(dimStyle.Render("  Connection: " + connectionText(m.connState))),
	}
	for _, a := range job.Advisories {
		cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! "+a.Message)))
	}
	if m.chatErr != "" {
		cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! Last answer failed: "+m.chatErr)))
	}
	cmds = append(cmds, tea.Println(""))
	return m, tea.Sequence(cmds...)
}

// ─── /report ────────────────────────────────────────────────────────────────

func (m model) cmdReport() (tea.Model, tea.Cmd) {
	job := m.machine.State()
	if m.index.Len() == 0 {
		if strings.TrimSpace(job.Report) == "" {
			return m, tea.Println(warnMsgStyle.Render("  ! No report yet."))
		}
		// Partial or unsegmented report.
		return m, tea.Println(display.RenderMarkdown(job.Report))
	}

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(renderReport(m.renderer, m.index, m.highlighter)),
		tea.Println(""),
	)
}

// ─── /export ────────────────────────────────────────────────────────────────

func (m model) cmdExport(args []string) (tea.Model, tea.Cmd) {
	label, text := service.ExportMarkdown(m.machine.State())
	if text == "" {
		return m, tea.Println(warnMsgStyle.Render("  ! No report to export."))
	}

	path := service.ExportFileName(label)
	if len(args) > 0 {
		path = args[0]
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Export failed: %v", err)))
	}
	return m, tea.Println(successMsgStyle.Render("  ✓ Saved " + path))
}

// ─── /ask ───────────────────────────────────────────────────────────────────

func (m model) cmdAsk(question string) (tea.Model, tea.Cmd) {
	question = strings.TrimSpace(question)
	if question == "" {
		return m, tea.Println(dimStyle.Render("  Usage: /ask <question>"))
	}
	if m.client == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ No server configured. Run: research set server <url>"))
	}
	return m.startAnswer(question)
}

// ─── /cite ──────────────────────────────────────────────────────────────────

// citeTarget resolves a /cite argument, either a display index from the
// last answer or a block id, to a block id and its label.
func (m model) citeTarget(arg string) (string, string, error) {
	arg = strings.Trim(arg, "[]")
	if strings.HasPrefix(strings.ToLower(arg), "b") {
		id := strings.ToLower(arg)
		if n, ok := m.lastAnswer.DisplayIndex(id); ok {
			return id, fmt.Sprintf("Source [%d]", n), nil
		}
		return id, "Section " + id, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", "", fmt.Errorf("not a source number: %s", arg)
	}
	id, ok := m.lastAnswer.BlockFor(n)
	if !ok {
		return "", "", fmt.Errorf("the last answer has no source [%d]", n)
	}
	return id, fmt.Sprintf("Source [%d]", n), nil
}

func (m model) cmdCite(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, tea.Println(dimStyle.Render("  Usage: /cite <n|bN>"))
	}
	id, label, err := m.citeTarget(args[0])
	if err != nil {
		return m, tea.Println(warnMsgStyle.Render(fmt.Sprintf("  ! %v", err)))
	}
	if m.highlighter == nil {
		return m, tea.Println(warnMsgStyle.Render("  ! No report to show sources from."))
	}
	hl, ok := m.highlighter.Activate(id)
	if !ok {
		return m, tea.Println(dimStyle.Render(fmt.Sprintf("  %s (%s) is not in this report.", label, id)))
	}
	block, _ := m.index.Get(id)

	return m, tea.Batch(
		tea.Sequence(
			tea.Println(""),
			tea.Println(citationStyle.Render("  "+label)+dimStyle.Render(fmt.Sprintf(" · section %d of %d", hl.Position+1, m.index.Len()))),
			tea.Println(renderBlock(m.renderer, block, true)),
			tea.Println(""),
		),
		expireHighlight(hl),
	)
}

// ─── /sources ───────────────────────────────────────────────────────────────

func (m model) cmdSources() (tea.Model, tea.Cmd) {
	lines := renderSources(m.lastAnswer, m.index)
	if len(lines) == 0 {
		return m, tea.Println(dimStyle.Render("  The last answer cited no sources."))
	}
	cmds := make([]tea.Cmd, 0, len(lines))
	for _, l := range lines {
		cmds = append(cmds, tea.Println(l))
	}
	return m, tea.Sequence(cmds...)
}

// ─── /history ───────────────────────────────────────────────────────────────

func (m model) cmdHistory() (tea.Model, tea.Cmd) {
	if m.session == nil || len(m.session.Messages()) == 0 {
		return m, tea.Println(dimStyle.Render("  No questions yet."))
	}
	cmds := []tea.Cmd{
		tea.Println(""),
		tea.Println(dimStyle.Render("  Conversation about job " + truncateID(m.session.JobID()) + ":")),
	}
	for _, l := range renderHistory(m.session.Messages(), m.index) {
		cmds = append(cmds, tea.Println(l))
	}
	cmds = append(cmds, tea.Println(""))
	return m, tea.Sequence(cmds...)
}

// ─── /config ────────────────────────────────────────────────────────────────

func (m model) cmdConfig() (tea.Model, tea.Cmd) {
	if m.cfg == nil {
		return m, tea.Println(warnMsgStyle.Render("  ! No configuration loaded."))
	}

	val := func(s string) string {
		if s == "" {
			return dimStyle.Render("(not set)")
		}
		return s
	}
	rt := m.cfg.Runtime

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(dimStyle.Render("  Configuration:")),
		tea.Println(fmt.Sprintf("    Profile:         %s", config.ProfileName(m.cfg.Profile))),
		tea.Println(fmt.Sprintf("    Server:          %s", val(m.cfg.Server))),
		tea.Println(fmt.Sprintf("    Last job:        %s", val(m.cfg.LastJob))),
		tea.Println(fmt.Sprintf("    Last company:    %s", val(m.cfg.LastCompany))),
		tea.Println(fmt.Sprintf("    Log level:       %s", val(rt.LogLevel))),
		tea.Println(fmt.Sprintf("    Poll interval:   %s", rt.PollInterval)),
		tea.Println(fmt.Sprintf("    Reconnect delay: %s", rt.ReconnectDelay)),
		tea.Println(fmt.Sprintf("    Max retries:     %d", rt.MaxRetries)),
		tea.Println(""),
	)
}

// ─── /clear ─────────────────────────────────────────────────────────────────

func (m model) cmdClear() (tea.Model, tea.Cmd) {
	return m, tea.ClearScreen
}
