package tui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"research-cli/internal/api"
	"research-cli/internal/chat"
	"research-cli/internal/citation"
	"research-cli/internal/config"
	"research-cli/internal/connection"
)

// ─── Messages sent from background work to Bubble Tea ──────────────────────

type jobSubmittedMsg struct {
	jobID   string
	company string
	err     error
}

// trackUpdateMsg carries one manager update. gen identifies the tracking
// run so updates from a replaced manager are dropped.
type trackUpdateMsg struct {
	gen    int
	update connection.Update
}

type trackDoneMsg struct {
	gen int
}

type chatUpdateMsg struct {
	gen int
	msg chat.Message
}

type chatDoneMsg struct {
	gen int
	msg chat.Message
	err error
}

type highlightExpiredMsg struct {
	generation int
}

// ─── Job submission ─────────────────────────────────────────────────────────

func submitResearch(client api.ResearchAPI, req api.ResearchRequest) tea.Cmd {
	company := req.Company
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := client.SubmitResearch(ctx, req)
		if err != nil {
			return jobSubmittedMsg{company: company, err: err}
		}
		return jobSubmittedMsg{jobID: resp.JobID, company: company}
	}
}

// ─── Job tracking ───────────────────────────────────────────────────────────

// managerFactory builds the connection manager for one tracking run.
type managerFactory func(client api.ResearchAPI, rt config.Runtime, logger *slog.Logger) *connection.Manager

func newManager(client api.ResearchAPI, rt config.Runtime, logger *slog.Logger) *connection.Manager {
	opts := connection.DefaultOptions()
	opts.ReconnectDelay = rt.ReconnectDelay
	opts.PollInterval = rt.PollInterval
	opts.MaxRetries = rt.MaxRetries
	opts.Logger = logger
	return connection.New(connection.NewWebSocketDialer(client.WebSocketURL), client, opts)
}

// waitForUpdate reads the next update of a tracking run. The manager closes
// its channel when it stops.
func waitForUpdate(gen int, ch <-chan connection.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return trackDoneMsg{gen: gen}
		}
		return trackUpdateMsg{gen: gen, update: u}
	}
}

// ─── Chat ───────────────────────────────────────────────────────────────────

// beginAsk runs one question on a goroutine and returns the channel its
// progress arrives on. The channel is closed after the chatDoneMsg.
func beginAsk(ctx context.Context, gen int, session *chat.Session, client api.ResearchAPI, question string) <-chan tea.Msg {
	ch := make(chan tea.Msg, 64)
	go func() {
		defer close(ch)
		send := func(msg tea.Msg) {
			select {
			case ch <- msg:
			case <-ctx.Done():
			}
		}
		final, err := session.Ask(ctx, client, question, func(m chat.Message) {
			send(chatUpdateMsg{gen: gen, msg: m})
		})
		// The done message must get through even after cancellation.
		ch <- chatDoneMsg{gen: gen, msg: final, err: err}
	}()
	return ch
}

func waitForChat(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// ─── Highlight ──────────────────────────────────────────────────────────────

func expireHighlight(hl citation.Highlight) tea.Cmd {
	return tea.Tick(time.Until(hl.Until), func(time.Time) tea.Msg {
		return highlightExpiredMsg{generation: hl.Generation}
	})
}
