package tui

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"research-cli/internal/api"
	"research-cli/internal/config"
)

// Run launches the interactive TUI. A non-empty jobID is tracked right away.
func Run(version string, cfg *config.Config, jobID string, logger *slog.Logger) error {
	var client api.ResearchAPI
	if cfg != nil && cfg.Server != "" {
		client = api.NewClient(cfg)
	}
	m := initialModel(version, cfg, client, logger)
	if jobID != "" && client != nil {
		company := ""
		if jobID == cfg.LastJob {
			company = cfg.LastCompany
		}
		var cmd tea.Cmd
		m, cmd = m.startTracking(jobID, company)
		m.pending = cmd
	}

	p := tea.NewProgram(m)

	final, err := p.Run()
	if fm, ok := final.(model); ok {
		fm.shutdown()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
