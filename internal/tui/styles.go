package tui

import "github.com/charmbracelet/lipgloss"

// ─── Colors ─────────────────────────────────────────────────────────────────

var (
	colorAccent  = lipgloss.Color("#4F9DDE") // primary accent
	colorGreen   = lipgloss.Color("78")
	colorYellow  = lipgloss.Color("220")
	colorRed     = lipgloss.Color("196")
	colorMagenta = lipgloss.Color("213")
	colorBlue    = lipgloss.Color("111")
	colorGray    = lipgloss.Color("242")
	colorDimGray = lipgloss.Color("238")
	colorWhite   = lipgloss.Color("255")
	colorMark    = lipgloss.Color("#3A3A1E")
)

// ─── Welcome ────────────────────────────────────────────────────────────────

var logoTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorAccent)

var versionStyle = lipgloss.NewStyle().
	Foreground(colorGray)

var welcomeHintStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Italic(true)

var welcomeInfoLabel = lipgloss.NewStyle().
	Foreground(colorGray)

// ─── Input / Prompt ─────────────────────────────────────────────────────────

var promptSymbol = lipgloss.NewStyle().
	Foreground(colorAccent).
	Bold(true)

// ─── Hint Bar ───────────────────────────────────────────────────────────────

var hintBarStyle = lipgloss.NewStyle().
	Foreground(colorGray)

var hintKeyStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Bold(true)

// Command menu styles
var cmdNameStyle = lipgloss.NewStyle().
	Foreground(colorAccent)

var cmdDescStyle = lipgloss.NewStyle().
	Foreground(colorGray)

var cmdSelectedNameStyle = lipgloss.NewStyle().
	Foreground(colorAccent).
	Bold(true).
	Reverse(true)

var cmdSelectedDescStyle = lipgloss.NewStyle().
	Foreground(colorWhite).
	Bold(true)

// ─── Job progress ───────────────────────────────────────────────────────────

var phaseStyle = lipgloss.NewStyle().
	Foreground(colorMagenta).
	Bold(true)

var queryStyle = lipgloss.NewStyle().
	Foreground(colorBlue)

var categoryStyle = lipgloss.NewStyle().
	Foreground(colorWhite).
	Bold(true)

var connStyle = lipgloss.NewStyle().
	Foreground(colorGray)

// ─── Report and citations ───────────────────────────────────────────────────

var blockGutterStyle = lipgloss.NewStyle().
	Foreground(colorDimGray)

var highlightStyle = lipgloss.NewStyle().
	Background(colorMark).
	BorderStyle(lipgloss.ThickBorder()).
	BorderLeft(true).
	BorderForeground(colorYellow).
	PaddingLeft(1)

var citationStyle = lipgloss.NewStyle().
	Foreground(colorAccent).
	Bold(true)

var citationMissingStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Strikethrough(true)

// ─── Output Styles ──────────────────────────────────────────────────────────

var successMsgStyle = lipgloss.NewStyle().
	Foreground(colorGreen)

var errorMsgStyle = lipgloss.NewStyle().
	Foreground(colorRed)

var warnMsgStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

var statusStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

var userPromptStyle = lipgloss.NewStyle().
	Foreground(colorAccent).
	Bold(true)

var dimStyle = lipgloss.NewStyle().
	Foreground(colorGray)

var separatorStyle = lipgloss.NewStyle().
	Foreground(colorDimGray)
