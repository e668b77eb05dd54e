package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"research-cli/internal/api"
	"research-cli/internal/chat"
	"research-cli/internal/citation"
	"research-cli/internal/config"
	"research-cli/internal/connection"
	"research-cli/internal/jobstate"
	"research-cli/internal/protocol"
	"research-cli/internal/report"
	"research-cli/internal/service"
)

// ─── App mode ───────────────────────────────────────────────────────────────

type appMode int

const (
	modeIdle appMode = iota
	modeSubmitting
	modeTracking
	modeAsking
)

const defaultPlaceholder = "Ask about the report or type /help..."

// ─── Slash command registry ─────────────────────────────────────────────────

type slashCmd struct {
	name string
	desc string
}

var slashCommands = []slashCmd{
	{"/ask", "Ask a question about the report"},
	{"/cite", "Show a cited report section"},
	{"/clear", "Clear the screen"},
	{"/config", "Show current configuration"},
	{"/export", "Save the report as markdown"},
	{"/help", "Show all commands"},
	{"/history", "Show the conversation so far"},
	{"/new", "Start researching a company"},
	{"/quit", "Exit"},
	{"/report", "Show the report"},
	{"/sources", "List sources of the last answer"},
	{"/status", "Show job progress"},
	{"/stop", "Stop tracking the current job"},
	{"/track", "Track an existing job"},
}

// ─── Model ──────────────────────────────────────────────────────────────────

type model struct {
	width  int
	height int

	// Bubble Tea components
	input    textinput.Model
	spinner  spinner.Model
	progress progress.Model

	// App state
	mode    appMode
	cfg     *config.Config
	client  api.ResearchAPI
	version string
	logger  *slog.Logger

	// Tracking state
	machine    *jobstate.Machine
	printer    *JobPrinter
	manager    *connection.Manager
	newManager managerFactory
	trackGen   int
	connState  connection.State

	// Report state, set once the job completes
	index       *report.Index
	highlighter *citation.Highlighter
	renderer    *glamour.TermRenderer

	// Chat state
	session    *chat.Session
	chatGen    int
	chatCh     <-chan tea.Msg
	chatCancel context.CancelFunc
	answer     *AnswerPrinter
	lastAnswer citation.Resolution
	// chatErr is the reason the last answer failed. Chat failures are not
	// job advisories.
	chatErr string

	// pending runs once at startup (tracking a job given on the command line)
	pending tea.Cmd

	// UI state
	ready        bool
	cmdMenuIdx   int
	cmdMenuOpen  bool
	lastInputVal string

	// Command history
	history      []string
	historyIdx   int
	historySaved string
}

func initialModel(version string, cfg *config.Config, client api.ResearchAPI, logger *slog.Logger) model {
	ti := textinput.New()
	ti.Placeholder = defaultPlaceholder
	ti.Focus()
	ti.CharLimit = 4096
	ti.Prompt = "❯ "
	ti.PromptStyle = promptSymbol
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(colorAccent)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	pb := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	pb.Width = 40

	if logger == nil {
		logger = slog.Default()
	}

	return model{
		input:      ti,
		spinner:    sp,
		progress:   pb,
		version:    version,
		cfg:        cfg,
		client:     client,
		logger:     logger,
		mode:       modeIdle,
		machine:    jobstate.NewMachine("", "", logger),
		printer:    NewJobPrinter(),
		newManager: newManager,
		connState:  connection.StateClosed,
		history:    make([]string, 0),
		historyIdx: -1,
	}
}

// ─── Init ───────────────────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.pending,
	)
}

// ─── Update ─────────────────────────────────────────────────────────────────

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 6
		m.progress.Width = min(max(m.width-30, 10), 40)

		if !m.ready {
			m.ready = true
			welcome := renderWelcome(m.version, serverStr(m.cfg), m.cfgJob())
			cmds = append(cmds, tea.Println(welcome))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			switch m.mode {
			case modeAsking:
				return m.cancelAnswer()
			case modeTracking:
				return m.stopTracking()
			}
			m.shutdown()
			return m, tea.Quit

		case tea.KeyEsc:
			switch m.mode {
			case modeAsking:
				return m.cancelAnswer()
			case modeTracking:
				return m.stopTracking()
			}
			if m.cmdMenuOpen {
				m.cmdMenuOpen = false
				m.cmdMenuIdx = 0
				return m, nil
			}

		case tea.KeyUp:
			if m.mode == modeIdle {
				if m.cmdMenuOpen {
					matches := matchCommands(m.input.Value())
					if len(matches) > 0 {
						m.cmdMenuIdx--
						if m.cmdMenuIdx < 0 {
							m.cmdMenuIdx = len(matches) - 1
						}
						return m, nil
					}
				} else if len(m.history) > 0 {
					if m.historyIdx == -1 {
						m.historySaved = m.input.Value()
						m.historyIdx = len(m.history) - 1
					} else if m.historyIdx > 0 {
						m.historyIdx--
					}
					m.input.SetValue(m.history[m.historyIdx])
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyDown:
			if m.mode == modeIdle {
				if m.cmdMenuOpen {
					matches := matchCommands(m.input.Value())
					if len(matches) > 0 {
						m.cmdMenuIdx++
						if m.cmdMenuIdx >= len(matches) {
							m.cmdMenuIdx = 0
						}
						return m, nil
					}
				} else if m.historyIdx != -1 {
					m.historyIdx++
					if m.historyIdx >= len(m.history) {
						m.historyIdx = -1
						m.input.SetValue(m.historySaved)
						m.historySaved = ""
					} else {
						m.input.SetValue(m.history[m.historyIdx])
					}
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyTab:
			if m.mode == modeIdle && m.cmdMenuOpen {
				matches := matchCommands(m.input.Value())
				if len(matches) > 0 {
					idx := m.cmdMenuIdx
					if idx < 0 || idx >= len(matches) {
						idx = 0
					}
					m.input.SetValue(matches[idx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
				}
				return m, nil
			}

		case tea.KeyEnter:
			if m.mode != modeIdle {
				return m, nil
			}
			if m.cmdMenuOpen && m.cmdMenuIdx >= 0 {
				val := strings.TrimSpace(m.input.Value())
				matches := matchCommands(val)
				if m.cmdMenuIdx < len(matches) && !strings.Contains(val, " ") && matches[m.cmdMenuIdx].name != val {
					m.input.SetValue(matches[m.cmdMenuIdx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
					return m, nil
				}
			}

			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}

			if len(m.history) == 0 || m.history[len(m.history)-1] != value {
				m.history = append(m.history, value)
				if len(m.history) > 1000 {
					m.history = m.history[len(m.history)-1000:]
				}
			}
			m.historyIdx = -1
			m.historySaved = ""

			m.input.SetValue("")
			m.cmdMenuOpen = false
			m.cmdMenuIdx = 0

			return m.dispatchInput(value)
		}

	// ── Job submission and tracking ───────────────────────────────────
	case jobSubmittedMsg:
		return m.handleJobSubmitted(msg)

	case trackUpdateMsg:
		return m.handleTrackUpdate(msg)

	case trackDoneMsg:
		return m.handleTrackDone(msg)

	// ── Chat ──────────────────────────────────────────────────────────
	case chatUpdateMsg:
		return m.handleChatUpdate(msg)

	case chatDoneMsg:
		return m.handleChatDone(msg)

	case highlightExpiredMsg:
		if m.highlighter != nil {
			m.highlighter.Expire(msg.generation)
		}
		return m, nil
	}

	// Update sub-components
	var cmd tea.Cmd

	if m.mode == modeIdle {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	newVal := m.input.Value()
	if newVal != m.lastInputVal {
		m.lastInputVal = newVal
		if m.historyIdx != -1 && m.historyIdx < len(m.history) && m.history[m.historyIdx] != newVal {
			m.historyIdx = -1
			m.historySaved = ""
		}
		m.cmdMenuOpen = strings.HasPrefix(newVal, "/")
		m.cmdMenuIdx = 0
	}

	return m, tea.Batch(cmds...)
}

// ─── View ───────────────────────────────────────────────────────────────────
//
// Inline mode: View() only shows the input prompt or activity line plus
// hints. All output is printed above via tea.Println.

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var s strings.Builder

	switch m.mode {
	case modeSubmitting:
		s.WriteString(m.spinner.View() + " " + statusStyle.Render("Submitting research request..."))
	case modeTracking:
		job := m.machine.State()
		status := phaseShort(job.Phase)
		if last := m.printer.LastStatus(); last != "" {
			status = last
		}
		s.WriteString(m.spinner.View() + " " + statusStyle.Render(status))
		s.WriteString("  " + connStyle.Render("["+connectionText(m.connState)+"]"))
		s.WriteString("\n  " + m.progress.ViewAs(service.ProgressFraction(job)))
	case modeAsking:
		s.WriteString(m.spinner.View() + " " + statusStyle.Render("Answering..."))
	default:
		s.WriteString(m.input.View())
	}
	s.WriteString("\n")

	if m.highlighter != nil {
		if hl, ok := m.highlighter.Current(); ok {
			s.WriteString(highlightStyle.Render(fmt.Sprintf("%s highlighted", hl.BlockID)))
			s.WriteString("\n")
		}
	}

	sepWidth := min(m.width, 80)
	if sepWidth < 20 {
		sepWidth = 20
	}
	s.WriteString(separatorStyle.Render(strings.Repeat("─", sepWidth)))
	s.WriteString("\n")

	s.WriteString(m.renderHints())

	return s.String()
}

// ─── Hint bar ───────────────────────────────────────────────────────────────

func (m model) renderHints() string {
	switch m.mode {
	case modeTracking:
		return hintBarStyle.Render("  Esc stop tracking")
	case modeAsking:
		return hintBarStyle.Render("  Esc cancel answer")
	case modeSubmitting:
		return hintBarStyle.Render("  Ctrl+C quit")
	}

	if m.cmdMenuOpen {
		matches := matchCommands(m.input.Value())
		if len(matches) > 0 {
			return m.renderCommandMenu(matches)
		}
	}

	return hintBarStyle.Render("  ? for help")
}

// renderCommandMenu renders a vertical list of matching commands.
func (m model) renderCommandMenu(matches []slashCmd) string {
	maxLen := 0
	for _, c := range matches {
		if len(c.name) > maxLen {
			maxLen = len(c.name)
		}
	}

	var lines []string
	for i, c := range matches {
		padded := c.name + strings.Repeat(" ", maxLen-len(c.name))
		var line string
		if i == m.cmdMenuIdx {
			line = "  " + cmdSelectedNameStyle.Render(padded) + "  " + cmdSelectedDescStyle.Render(c.desc)
		} else {
			line = "  " + cmdNameStyle.Render(padded) + "  " + cmdDescStyle.Render(c.desc)
		}
		lines = append(lines, line)
	}
	lines = append(lines, hintBarStyle.Render("  ↑↓ navigate  Tab/Enter select"))
	return strings.Join(lines, "\n")
}

// matchCommands returns all slash commands matching the first word of input.
func matchCommands(input string) []slashCmd {
	prefix := strings.ToLower(strings.Fields(input + " ")[0])
	if prefix == "/" {
		return slashCommands
	}
	var matches []slashCmd
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, prefix) {
			matches = append(matches, c)
		}
	}
	return matches
}

// ─── Tracking ───────────────────────────────────────────────────────────────

// startTracking replaces any current job with jobID and opens its stream.
func (m model) startTracking(jobID, company string) (model, tea.Cmd) {
	m.closeTracking()
	m.resetReport()

	m.trackGen++
	m.machine.Reset(jobID, company)
	m.printer = NewJobPrinter()
	m.connState = connection.StateConnecting

	if m.cfg != nil {
		if err := m.cfg.RememberJob(jobID, company); err != nil {
			m.logger.Warn("saving last job", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}

	mgr := m.newManager(m.client, m.runtime(), m.logger)
	if err := mgr.Open(context.Background(), jobID); err != nil {
		m.mode = modeIdle
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Cannot track job: %v", err)))
	}
	m.manager = mgr
	m.mode = modeTracking
	return m, waitForUpdate(m.trackGen, mgr.Updates())
}

func (m model) handleJobSubmitted(msg jobSubmittedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.mode = modeIdle
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Research request failed: %v", msg.err)))
	}
	m, cmd := m.startTracking(msg.jobID, msg.company)
	return m, tea.Sequence(
		tea.Println(successMsgStyle.Render("  ✓ Job: "+truncateID(msg.jobID))),
		cmd,
	)
}

func (m model) handleTrackUpdate(msg trackUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.trackGen || m.manager == nil {
		return m, nil
	}

	switch u := msg.update.(type) {
	case connection.EventUpdate:
		m.machine.Apply(u.Event)
	case connection.StateUpdate:
		m.connState = u.To
		if u.Err != nil {
			m.logger.Debug("connection state changed",
				slog.String("to", u.To.String()), slog.Any("error", u.Err))
		}
	case connection.AdvisoryUpdate:
		m.machine.Advise(u.Advisory)
	}

	job := m.machine.State()
	var printCmds []tea.Cmd
	for _, ev := range m.printer.Update(job) {
		printCmds = append(printCmds, tea.Println(renderOutput(ev)))
		if ev.Type == OutputReportReady {
			printCmds = append(printCmds, m.presentReport(job)...)
		}
	}

	if job.Phase.Terminal() {
		m.mode = modeIdle
	}

	printCmds = append(printCmds, waitForUpdate(msg.gen, m.manager.Updates()))
	return m, tea.Sequence(printCmds...)
}

func (m model) handleTrackDone(msg trackDoneMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.trackGen {
		return m, nil
	}
	m.manager = nil
	if m.mode != modeTracking {
		return m, nil
	}
	m.mode = modeIdle
	if m.connState == connection.StateClosedFailed {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Lost contact with the job"))
	}
	return m, tea.Println(dimStyle.Render("  Tracking stopped."))
}

func (m model) stopTracking() (tea.Model, tea.Cmd) {
	m.closeTracking()
	m.mode = modeIdle
	return m, tea.Println(warnMsgStyle.Render("  ! Stopped tracking. Use /track to resume."))
}

// closeTracking stops the current manager. Its pending updates carry an old
// generation and are dropped.
func (m *model) closeTracking() {
	if m.manager != nil {
		m.manager.Close()
		m.manager = nil
	}
	m.trackGen++
	m.connState = connection.StateClosed
}

// presentReport segments the finished report and prints it with block ids.
func (m *model) presentReport(job jobstate.Job) []tea.Cmd {
	blocks := report.Segment(job.Report)
	m.index = report.NewIndex(blocks)
	m.highlighter = citation.NewHighlighter(m.index)
	if m.session != nil {
		m.session.Close()
	}
	m.session = chat.NewSession(job.ID)
	m.lastAnswer = citation.Resolution{}
	m.chatErr = ""

	if m.renderer == nil {
		r, err := newMarkdownRenderer(m.width)
		if err != nil {
			m.logger.Warn("creating markdown renderer", slog.Any("error", err))
		}
		m.renderer = r
	}

	if len(blocks) == 0 {
		a := protocol.Advisory{Class: protocol.SegmentationNoop, Message: "The report has no sections to cite"}
		var cmds []tea.Cmd
		if m.machine.Advise(a) {
			m.printer.Update(m.machine.State())
			cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! "+a.Message)))
		}
		if strings.TrimSpace(job.Report) != "" {
			cmds = append(cmds, tea.Println(job.Report))
		}
		return cmds
	}

	return []tea.Cmd{
		tea.Println(""),
		tea.Println(renderReport(m.renderer, m.index, nil)),
		tea.Println(""),
		tea.Println(dimStyle.Render("  Ask a question about the report, or /help for commands.")),
	}
}

// ─── Chat ───────────────────────────────────────────────────────────────────

func (m model) startAnswer(question string) (tea.Model, tea.Cmd) {
	if jobID := m.machine.State().ID; m.session == nil || m.session.JobID() != jobID {
		if m.session != nil {
			m.session.Close()
		}
		m.session = chat.NewSession(jobID)
		m.lastAnswer = citation.Resolution{}
		m.chatErr = ""
	}
	if m.session.Streaming() {
		return m, tea.Println(warnMsgStyle.Render("  ! Still answering the previous question."))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.chatGen++
	m.chatCancel = cancel
	m.answer = NewAnswerPrinter(m.index)
	m.chatCh = beginAsk(ctx, m.chatGen, m.session, m.client, question)
	m.mode = modeAsking

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(userPromptStyle.Render("  ❯ "+question)),
		tea.Println(""),
		waitForChat(m.chatCh),
	)
}

func (m model) handleChatUpdate(msg chatUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.chatGen || m.chatCh == nil {
		return m, nil
	}
	var cmds []tea.Cmd
	if !msg.msg.Failed && !msg.msg.Cancelled {
		for _, line := range m.answer.Update(msg.msg.Content) {
			cmds = append(cmds, tea.Println("  "+line))
		}
	}
	cmds = append(cmds, waitForChat(m.chatCh))
	return m, tea.Sequence(cmds...)
}

func (m model) handleChatDone(msg chatDoneMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.chatGen {
		return m, nil
	}
	m.mode = modeIdle
	m.chatCh = nil
	if m.chatCancel != nil {
		m.chatCancel()
		m.chatCancel = nil
	}

	var cmds []tea.Cmd
	for _, line := range m.answer.Flush() {
		cmds = append(cmds, tea.Println("  "+line))
	}

	switch {
	case msg.msg.Cancelled || errors.Is(msg.err, context.Canceled):
		cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! Answer cancelled.")))
	case msg.msg.Failed:
		m.logger.Warn("chat stream failed", slog.Any("error", msg.err))
		m.chatErr = api.ErrorMessage(msg.err)
		cmds = append(cmds,
			tea.Println(errorMsgStyle.Render("  ✗ "+chat.FallbackReply)),
			tea.Println(dimStyle.Render("    "+m.chatErr)),
		)
	case msg.err != nil:
		cmds = append(cmds, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", msg.err))))
	default:
		m.chatErr = ""
		m.lastAnswer = m.answer.Resolution()
		if src := renderSources(m.lastAnswer, m.index); len(src) > 0 {
			cmds = append(cmds, tea.Println(""))
			for _, line := range src {
				cmds = append(cmds, tea.Println(line))
			}
		}
	}
	cmds = append(cmds, tea.Println(""))
	return m, tea.Sequence(cmds...)
}

func (m model) cancelAnswer() (tea.Model, tea.Cmd) {
	if m.chatCancel != nil {
		m.chatCancel()
	}
	if m.session != nil {
		m.session.Cancel()
	}
	// Mode returns to idle when the done message arrives.
	return m, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (m *model) resetReport() {
	m.index = nil
	m.highlighter = nil
	m.lastAnswer = citation.Resolution{}
	m.chatErr = ""
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

// shutdown releases background work before the program exits.
func (m *model) shutdown() {
	if m.chatCancel != nil {
		m.chatCancel()
	}
	m.closeTracking()
}

func (m model) runtime() config.Runtime {
	if m.cfg == nil {
		return config.DefaultRuntime()
	}
	return m.cfg.Runtime
}

func (m model) cfgJob() string {
	if m.cfg == nil {
		return ""
	}
	return m.cfg.LastJob
}

func serverStr(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Server
}
